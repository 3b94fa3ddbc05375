package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"villaops/internal/calendar"
	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/events"
	"villaops/internal/models"
	"villaops/internal/repository"
	"villaops/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db     *database.DB
	feed   *events.Feed
	svc    Services
	server *HTTPServer
	ts     *httptest.Server
}

type envOption func(*config.APIConfig, *config.WebhookConfig, *Services)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SyncProperties(context.Background(), []models.Property{
		{ID: 1, Name: "Villa Azul", MaxGuests: 6, IsActive: true},
		{ID: 2, Name: "Casa Sol", MaxGuests: 4, IsActive: true},
	}))

	feed := events.NewFeed(64, &logger)
	t.Cleanup(feed.Close)
	sync := events.NewSyncService(feed, &logger)

	bookingCfg := config.BookingConfig{AutoCleaningJobs: true, CleaningStartHour: 11, CleaningDurationHours: 3}
	syncLog := service.NewSyncLogService(db, nil, &logger)
	notifications := service.NewNotificationService(db, sync, nil, nil, &logger)
	jobs := service.NewJobService(db, sync, notifications, syncLog, bookingCfg, &logger)
	bookings := service.NewBookingService(db, sync, nil, syncLog, jobs, bookingCfg, &logger)
	live := calendar.NewLiveService(db, sync, &logger)
	bookings.SetConflictDetector(live)

	svc := Services{
		Repo:          db,
		Cache:         repository.NewMemoryCache(),
		Feed:          feed,
		Calendar:      calendar.NewService(db, nil, 0, &logger),
		Live:          live,
		Bookings:      bookings,
		Jobs:          jobs,
		Staff:         service.NewStaffService(db, sync, &logger),
		Notifications: notifications,
		Approvals: service.NewApprovalService(db, bookings, notifications, syncLog, config.ApprovalConfig{
			ConfidenceThreshold: 0.8,
			EscalateConflicts:   true,
		}, &logger),
		SyncLog: syncLog,
	}
	cfg := config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
	hooks := config.WebhookConfig{
		Secrets:      map[string]string{"airbnb": "s3cret"},
		SecretHeader: "x-webhook-secret",
	}
	for _, opt := range opts {
		opt(&cfg, &hooks, &svc)
	}

	server := NewHTTPServer(cfg, hooks, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, feed: feed, svc: svc, server: server, ts: ts}
}

func withAuth(keys ...config.APIClientKey) envOption {
	return func(cfg *config.APIConfig, _ *config.WebhookConfig, _ *Services) {
		cfg.Auth = config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys:      keys,
		}
	}
}

type response struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (r response) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{Status: resp.StatusCode}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// stay returns check-in and check-out dates offset days from today.
func stay(offset, nights int) (string, string) {
	in := models.DateOnly(time.Now()).AddDate(0, 0, offset)
	return in.Format(models.DateLayout), in.AddDate(0, 0, nights).Format(models.DateLayout)
}

func (e *testEnv) createBooking(t *testing.T, propertyID int64, guest string, offset, nights int) *models.Booking {
	t.Helper()
	in, out := stay(offset, nights)
	resp := e.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"property_id": propertyID,
		"guest_name":  guest,
		"guests":      2,
		"check_in":    in,
		"check_out":   out,
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var b models.Booking
	resp.decode(t, &b)
	return &b
}
