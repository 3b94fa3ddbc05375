package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"villaops/internal/calendar"
	"villaops/internal/config"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the collaborators behind the HTTP and gRPC handlers.
type Services struct {
	Repo          domain.Repository
	Cache         domain.CacheRepository
	Feed          *events.Feed
	Calendar      *calendar.Service
	Live          *calendar.LiveService
	Bookings      *service.BookingService
	Jobs          *service.JobService
	Staff         *service.StaffService
	Notifications *service.NotificationService
	Approvals     *service.ApprovalService
	SyncLog       *service.SyncLogService
}

// HTTPServer exposes the REST API, webhook intake and the WebSocket stream.
type HTTPServer struct {
	cfg      config.APIConfig
	webhooks config.WebhookConfig
	svc      Services
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, webhooks config.WebhookConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, webhooks: webhooks, svc: svc}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	} else {
		srv.log = zerolog.Nop()
	}
	srv.auth = NewHTTPAuth(cfg)

	router := httprouter.New()
	srv.routes(router)

	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", apiKeyHeaderDefault, apiExtraHeaderDefault, cfg.Auth.HeaderAPIKey, cfg.Auth.HeaderExtra, webhooks.SecretHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(srv.auth.Wrap(router))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           requestMiddleware(srv.log, corsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(router *httprouter.Router) {
	handle := func(method, path string, h httprouter.Handle) {
		router.Handle(method, path, observe(path, h))
	}

	handle(http.MethodGet, "/healthz", s.handleHealth)
	handle(http.MethodGet, "/api/v1/properties", s.handleListProperties)

	handle(http.MethodGet, "/api/v1/bookings", s.handleListBookings)
	handle(http.MethodPost, "/api/v1/bookings", s.handleCreateBooking)
	handle(http.MethodGet, "/api/v1/bookings/:id", s.handleGetBooking)
	handle(http.MethodPost, "/api/v1/bookings/:id/approve", s.bookingTransition(s.svc.Bookings.Approve))
	handle(http.MethodPost, "/api/v1/bookings/:id/reject", s.bookingTransition(s.svc.Bookings.Reject))
	handle(http.MethodPost, "/api/v1/bookings/:id/cancel", s.bookingTransition(s.svc.Bookings.Cancel))
	handle(http.MethodPost, "/api/v1/bookings/:id/complete", s.bookingTransition(s.svc.Bookings.Complete))
	handle(http.MethodGet, "/api/v1/availability/:property_id", s.handleAvailability)

	handle(http.MethodGet, "/api/v1/staff", s.handleListStaff)
	handle(http.MethodPost, "/api/v1/staff", s.handleCreateStaff)
	handle(http.MethodGet, "/api/v1/staff/:id", s.handleGetStaff)
	handle(http.MethodPut, "/api/v1/staff/:id", s.handleUpdateStaff)
	handle(http.MethodDelete, "/api/v1/staff/:id", s.handleDeactivateStaff)

	handle(http.MethodGet, "/api/v1/jobs", s.handleListJobs)
	handle(http.MethodPost, "/api/v1/jobs", s.handleCreateJob)
	handle(http.MethodGet, "/api/v1/jobs/:id", s.handleGetJob)
	handle(http.MethodPost, "/api/v1/jobs/:id/assign", s.handleAssignJob)
	handle(http.MethodPost, "/api/v1/jobs/:id/start", s.jobTransition(s.svc.Jobs.Start))
	handle(http.MethodPost, "/api/v1/jobs/:id/complete", s.jobTransition(s.svc.Jobs.Complete))
	handle(http.MethodPost, "/api/v1/jobs/:id/cancel", s.jobTransition(s.svc.Jobs.Cancel))

	handle(http.MethodGet, "/api/v1/notifications", s.handleListNotifications)
	handle(http.MethodPost, "/api/v1/notifications", s.handleCreateNotification)
	handle(http.MethodPost, "/api/v1/notifications/:id/read", s.handleMarkRead)

	handle(http.MethodGet, "/api/v1/calendar", s.handleCalendar)
	handle(http.MethodGet, "/api/v1/conflicts", s.handleListConflicts)
	handle(http.MethodPost, "/api/v1/conflicts/:id/resolve", s.handleResolveConflict)
	handle(http.MethodGet, "/api/v1/sync-events", s.handleListSyncEvents)

	handle(http.MethodGet, "/api/v1/ai-decisions", s.handleListDecisions)
	handle(http.MethodPost, "/api/v1/ai-decisions", s.handleRecordDecision)
	handle(http.MethodPost, "/api/v1/ai-decisions/:id/resolve", s.handleResolveDecision)

	handle(http.MethodPost, "/api/v1/webhooks/:source", s.handleWebhook)
	handle(http.MethodGet, "/ws", s.handleWebSocket)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		zerolog.Ctx(r.Context()).Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panicked")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness plus the sheet sync backlog. A failing
// queue count degrades the status but still answers 200.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := "ok"
	queue, err := s.svc.Repo.CountSyncTasksByStatus(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("sync queue count failed")
		status = "degraded"
	}
	writeData(w, http.StatusOK, map[string]any{
		"status":      status,
		"subscribers": s.svc.Feed.Subscribers(),
		"sync_queue":  queue,
	})
}

func (s *HTTPServer) handleListProperties(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	props, err := s.svc.Repo.ListProperties(r.Context(), queryBool(r, "active"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, props)
}
