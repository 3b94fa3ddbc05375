package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"villaops/internal/config"

	"github.com/rs/zerolog"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permRead              = "read"
	permWrite             = "write"
	permReview            = "review"
	clientKeyUnknown      = "unknown"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// keyring resolves API clients from their key pair. It is shared by the
// HTTP and gRPC front ends.
type keyring struct {
	apiKeyHeader string
	extraHeader  string
	clients      map[string]config.APIClientKey
}

func newKeyring(cfg config.APIAuthConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		// keys left empty by unset env vars
		if k.Key == "" {
			continue
		}
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &keyring{apiKeyHeader: apiKeyHeader, extraHeader: extraHeader, clients: m}
}

func (k *keyring) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := k.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// permitted treats an empty permission list as allow-all.
func permitted(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		keys:    newKeyring(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("client", client.Name)
			})
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKey, extra := a.credentials(r)
	client, err := a.keys.authenticate(apiKey, extra)
	if err != nil {
		return client, err
	}
	if !permitted(client, requiredPermissionHTTP(r)) {
		return client, errPermissionDenied
	}
	return client, nil
}

// credentials reads the key pair from headers. Browsers cannot set headers
// on a WebSocket handshake, so /ws also accepts query parameters.
func (a *HTTPAuth) credentials(r *http.Request) (string, string) {
	apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(a.keys.extraHeader))
	if apiKey == "" && r.URL.Path == "/ws" {
		q := r.URL.Query()
		apiKey = strings.TrimSpace(q.Get("api_key"))
		extra = strings.TrimSpace(q.Get("api_extra"))
	}
	return apiKey, extra
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	if strings.HasPrefix(path, "/api/v1/ai-decisions/") && strings.HasSuffix(path, "/resolve") {
		return permReview
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return permRead
	}
	return permWrite
}

// isPublicPath lists routes that carry their own checks or none at all.
func isPublicPath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/api/v1/webhooks/")
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey, _ := a.credentials(r); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
