package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"villaops/internal/calendar"
	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, payload interface{}) error {
	return m.Called(ctx, taskType, bookingID, payload).Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

type harness struct {
	db            *database.DB
	worker        *mockWorker
	sender        *mockSender
	sync          *events.SyncService
	syncLog       *SyncLogService
	notifications *NotificationService
	staff         *StaffService
	jobs          *JobService
	bookings      *BookingService
	approvals     *ApprovalService
}

// today is the fixed clock used by booking validation in tests.
var today = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SyncProperties(context.Background(), []models.Property{
		{ID: 1, Name: "Villa Azul", MaxGuests: 6, IsActive: true},
		{ID: 2, Name: "Casa Sol", MaxGuests: 4, IsActive: true},
		{ID: 3, Name: "Old Barn", MaxGuests: 2, IsActive: false},
	}))

	worker := new(mockWorker)
	worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	sender := new(mockSender)

	feed := events.NewFeed(64, nil)
	t.Cleanup(feed.Close)
	sync := events.NewSyncService(feed, nil)

	bookingCfg := config.BookingConfig{
		MaxAdvanceDays:        365,
		MaxNights:             30,
		AutoCleaningJobs:      true,
		CleaningStartHour:     11,
		CleaningDurationHours: 3,
	}

	h := &harness{db: db, worker: worker, sender: sender, sync: sync}
	h.syncLog = NewSyncLogService(db, worker, &logger)
	h.notifications = NewNotificationService(db, sync, sender, []int64{9000}, &logger)
	h.staff = NewStaffService(db, sync, &logger)
	h.jobs = NewJobService(db, sync, h.notifications, h.syncLog, bookingCfg, &logger)
	h.bookings = NewBookingService(db, sync, worker, h.syncLog, h.jobs, bookingCfg, &logger)
	h.bookings.SetConflictDetector(calendar.NewLiveService(db, sync, &logger))
	h.bookings.now = func() time.Time { return today }
	h.approvals = NewApprovalService(db, h.bookings, h.notifications, h.syncLog, config.ApprovalConfig{
		ConfidenceThreshold: 0.8,
		EscalateConflicts:   true,
	}, &logger)
	return h
}

func (h *harness) addStaff(t *testing.T, name, role string, chatID int64) *models.StaffProfile {
	t.Helper()
	p := &models.StaffProfile{Name: name, Role: role, TelegramChatID: chatID}
	require.NoError(t, h.staff.Create(context.Background(), p))
	return p
}

func newStay(propertyID int64, guest, in, out string) *models.Booking {
	return &models.Booking{
		PropertyID: propertyID,
		GuestName:  guest,
		GuestEmail: "guest@example.com",
		Guests:     2,
		CheckIn:    day(in),
		CheckOut:   day(out),
	}
}
