package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Health(t *testing.T) {
	env := newTestEnv(t)

	ctx := context.Background()
	require.NoError(t, env.db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskUpsertBooking, BookingID: 1, Payload: "{}"}))
	failed := &models.SyncTask{TaskType: models.TaskDeleteBooking, BookingID: 2, Payload: "{}"}
	require.NoError(t, env.db.CreateSyncTask(ctx, failed))
	require.NoError(t, env.db.UpdateSyncTaskStatus(ctx, failed.ID, models.SyncStatusFailed, "gone", nil))

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)
	var health struct {
		Status    string         `json:"status"`
		SyncQueue map[string]int `json:"sync_queue"`
	}
	resp.decode(t, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, map[string]int{models.SyncStatusPending: 1, models.SyncStatusFailed: 1}, health.SyncQueue)

	resp = env.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, "not found", resp.Error)
}

func TestHTTP_Properties(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/properties", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var props []models.Property
	resp.decode(t, &props)
	require.Len(t, props, 2)
	assert.Equal(t, "Villa Azul", props[0].Name)
}

func TestHTTP_BookingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.createBooking(t, 1, "Lena Park", 10, 3)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "Villa Azul", created.PropertyName)
	assert.Equal(t, models.SourceDirect, created.Source)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var got models.Booking
	resp.decode(t, &got)
	assert.Equal(t, "Lena Park", got.GuestName)

	// overlapping direct booking
	in, out := stay(11, 2)
	resp = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"property_id": 1, "guest_name": "Omar", "check_in": in, "check_out": out,
	})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, database.ErrNotAvailable.Error(), resp.Error)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", created.ID), map[string]any{"version": created.Version})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var approved models.Booking
	resp.decode(t, &approved)
	assert.Equal(t, models.StatusApproved, approved.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", created.ID), nil)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", created.ID), map[string]any{"version": created.Version})
	assert.Equal(t, http.StatusConflict, resp.Status, "stale version must be rejected")

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs?booking_id=%d", created.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var jobs []models.Job
	resp.decode(t, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobTypeCleaning, jobs[0].Type)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings?property_id=1&status=approved", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var list []models.Booking
	resp.decode(t, &list)
	assert.Len(t, list, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/sync-events?entity_type=booking", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var syncEvents []models.SyncEvent
	resp.decode(t, &syncEvents)
	assert.GreaterOrEqual(t, len(syncEvents), 2)
}

func TestHTTP_BookingValidation(t *testing.T) {
	env := newTestEnv(t)
	in, out := stay(5, 2)
	pastIn, pastOut := stay(-5, 2)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"MissingGuest", map[string]any{"property_id": 1, "check_in": in, "check_out": out}, "guest_name is required"},
		{"MissingProperty", map[string]any{"guest_name": "A", "check_in": in, "check_out": out}, "property_id is required"},
		{"BadDate", map[string]any{"property_id": 1, "guest_name": "A", "check_in": "01/02/2026", "check_out": out}, "invalid check_in; expected YYYY-MM-DD"},
		{"PastDate", map[string]any{"property_id": 1, "guest_name": "A", "check_in": pastIn, "check_out": pastOut}, ""},
		{"Inverted", map[string]any{"property_id": 1, "guest_name": "A", "check_in": out, "check_out": in}, ""},
		{"TooManyGuests", map[string]any{"property_id": 2, "guest_name": "A", "guests": 9, "check_in": in, "check_out": out}, ""},
		{"UnknownField", map[string]any{"property_id": 1, "guest_name": "A", "check_in": in, "check_out": out, "vip": true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/bookings", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.False(t, resp.Success)
			if tt.want != "" {
				assert.Equal(t, tt.want, resp.Error)
			} else {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}

	resp := env.do(t, http.MethodGet, "/api/v1/bookings/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	resp = env.do(t, http.MethodGet, "/api/v1/bookings/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestHTTP_Availability(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBooking(t, 1, "Lena", 3, 2)

	start := b.CheckIn.AddDate(0, 0, -1).Format(models.DateLayout)
	resp := env.do(t, http.MethodGet, "/api/v1/availability/1?days=4&start="+start, nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var days []models.Availability
	resp.decode(t, &days)
	require.Len(t, days, 4)
	assert.True(t, days[0].Available)
	assert.False(t, days[1].Available)
	assert.False(t, days[2].Available)
	assert.True(t, days[3].Available, "check-out day is free")

	resp = env.do(t, http.MethodGet, "/api/v1/availability/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	resp = env.do(t, http.MethodGet, "/api/v1/availability/1?days=500", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestHTTP_StaffAndJobs(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/staff", map[string]any{"name": "Ana", "role": models.RoleCleaner})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var ana models.StaffProfile
	resp.decode(t, &ana)
	assert.True(t, ana.IsActive)

	resp = env.do(t, http.MethodPost, "/api/v1/staff", map[string]any{"name": "Bob", "role": "pilot"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/staff/%d", ana.ID), map[string]any{"phone": "+30 555"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var updated models.StaffProfile
	resp.decode(t, &updated)
	assert.Equal(t, "+30 555", updated.Phone)
	assert.Equal(t, "Ana", updated.Name)

	start := models.DateOnly(time.Now()).AddDate(0, 0, 2).Add(10 * time.Hour)
	resp = env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"property_id":     1,
		"type":            models.JobTypeMaintenance,
		"staff_id":        ana.ID,
		"scheduled_start": start.Format(time.RFC3339),
		"scheduled_end":   start.Add(2 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var first models.Job
	resp.decode(t, &first)
	assert.Equal(t, models.JobStatusAssigned, first.Status)

	resp = env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"property_id":     2,
		"type":            models.JobTypeInspection,
		"scheduled_start": start.Add(time.Hour).Format(time.RFC3339),
		"scheduled_end":   start.Add(3 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var second models.Job
	resp.decode(t, &second)
	assert.Equal(t, models.JobStatusPending, second.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/assign", second.ID), map[string]any{"staff_id": ana.ID})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Contains(t, resp.Error, database.ErrStaffBusy.Error())

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/start", first.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/complete", first.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var done models.Job
	resp.decode(t, &done)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/assign", second.ID), map[string]any{"staff_id": ana.ID})
	require.Equal(t, http.StatusOK, resp.Status, "completed jobs no longer block: %s", resp.Error)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications?staff_id=%d&unread=true", ana.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var unread []models.Notification
	resp.decode(t, &unread)
	require.Len(t, unread, 2)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/read", unread[0].ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications?staff_id=%d&unread=true", ana.ID), nil)
	resp.decode(t, &unread)
	assert.Len(t, unread, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/staff/%d", ana.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var gone models.StaffProfile
	resp.decode(t, &gone)
	assert.False(t, gone.IsActive)
}

func TestHTTP_Calendar(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBooking(t, 2, "Mia", 4, 3)

	from := models.DateOnly(time.Now()).Format(models.DateLayout)
	to := models.DateOnly(time.Now()).AddDate(0, 0, 14).Format(models.DateLayout)
	resp := env.do(t, http.MethodGet, "/api/v1/calendar?property_id=2&from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var evs []models.CalendarEvent
	resp.decode(t, &evs)
	require.Len(t, evs, 1)
	assert.Equal(t, fmt.Sprintf("booking-%d", b.ID), evs[0].ID)

	resp = env.do(t, http.MethodGet, "/api/v1/calendar?from="+to+"&to="+from, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	resp = env.do(t, http.MethodGet, "/api/v1/calendar?from=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(t, http.MethodGet, "/api/v1/conflicts?kind=weather", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestHTTP_AIDecisions(t *testing.T) {
	env := newTestEnv(t)
	b := env.createBooking(t, 1, "Noah", 20, 4)

	resp := env.do(t, http.MethodPost, "/api/v1/ai-decisions", map[string]any{
		"booking_id": b.ID, "decision": models.DecisionApprove, "confidence": 0.55, "model": "ranker-v2",
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var entry models.AILogEntry
	resp.decode(t, &entry)
	assert.True(t, entry.Escalated)
	assert.Contains(t, entry.EscalationReason, "confidence 0.55 below 0.80")

	resp = env.do(t, http.MethodGet, "/api/v1/ai-decisions", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var pending []models.AILogEntry
	resp.decode(t, &pending)
	require.Len(t, pending, 1)

	resp = env.do(t, http.MethodPost, "/api/v1/staff", map[string]any{"name": "Maria", "role": models.RoleManager})
	require.Equal(t, http.StatusCreated, resp.Status)
	var manager models.StaffProfile
	resp.decode(t, &manager)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/ai-decisions/%d/resolve", entry.ID), map[string]any{
		"reviewer_id": manager.ID, "approve": true,
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var resolved models.AILogEntry
	resp.decode(t, &resolved)
	assert.Equal(t, models.DecisionApprove, resolved.Resolution)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/ai-decisions/%d/resolve", entry.ID), map[string]any{
		"reviewer_id": manager.ID, "approve": false,
	})
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", b.ID), nil)
	var got models.Booking
	resp.decode(t, &got)
	assert.Equal(t, models.StatusApproved, got.Status)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ai-decisions?booking_id=%d", b.ID), nil)
	var history []models.AILogEntry
	resp.decode(t, &history)
	assert.Len(t, history, 1)

	resp = env.do(t, http.MethodPost, "/api/v1/ai-decisions", map[string]any{"booking_id": b.ID, "decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	resp = env.do(t, http.MethodPost, "/api/v1/ai-decisions", map[string]any{
		"booking_id": b.ID, "decision": models.DecisionReject, "confidence": 0.99,
	})
	assert.Equal(t, http.StatusConflict, resp.Status, "booking is no longer pending")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("booking 1: %w", database.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: guests", database.ErrValidation), http.StatusBadRequest},
		{database.ErrPastDate, http.StatusBadRequest},
		{database.ErrDateTooFar, http.StatusBadRequest},
		{database.ErrNotAvailable, http.StatusConflict},
		{database.ErrConcurrentModification, http.StatusConflict},
		{database.ErrStaffBusy, http.StatusConflict},
		{database.ErrInvalidTransition, http.StatusConflict},
		{database.ErrAlreadyResolved, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
