package domain

import (
	"context"
	"time"

	"villaops/internal/events"
	"villaops/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the persistence surface used by the services.
type Repository interface {
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	ListProperties(ctx context.Context, activeOnly bool) ([]*models.Property, error)

	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByExternalRef(ctx context.Context, source, ref string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
	OverlappingBookings(ctx context.Context, propertyID int64, checkIn, checkOut time.Time, excludeID int64) ([]*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	ApproveBookingWithLock(ctx context.Context, id, fromVersion int64) error
	UpdateBookingStayWithVersion(ctx context.Context, b *models.Booking) error
	SetBookingConflict(ctx context.Context, id int64, conflict bool) error
	GetAvailabilityForPeriod(ctx context.Context, propertyID int64, startDate time.Time, days int) ([]*models.Availability, error)

	CreateStaff(ctx context.Context, s *models.StaffProfile) error
	UpdateStaff(ctx context.Context, s *models.StaffProfile) error
	GetStaff(ctx context.Context, id int64) (*models.StaffProfile, error)
	ListStaff(ctx context.Context, role string, activeOnly bool) ([]*models.StaffProfile, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
	StaffJobsInRange(ctx context.Context, staffID int64, start, end time.Time, excludeID int64) ([]*models.Job, error)
	UpdateJobWithVersion(ctx context.Context, job *models.Job) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationSent(ctx context.Context, id int64, errMsg string) error
	MarkNotificationRead(ctx context.Context, id int64) error
	ListNotifications(ctx context.Context, staffID int64, unreadOnly bool, limit int) ([]*models.Notification, error)

	UpsertConflict(ctx context.Context, c *models.Conflict) error
	ListConflicts(ctx context.Context, kind string, unresolvedOnly bool) ([]*models.Conflict, error)
	GetConflict(ctx context.Context, id int64) (*models.Conflict, error)
	ResolveConflict(ctx context.Context, id int64) error
	ResolveConflictsFor(ctx context.Context, kind string, entityID int64) ([]int64, error)
	HasOpenConflicts(ctx context.Context, kind string, entityID int64) (bool, error)

	CreateSyncEvent(ctx context.Context, e *models.SyncEvent) error
	ListSyncEvents(ctx context.Context, f models.SyncEventFilter) ([]*models.SyncEvent, error)
	CountSyncTasksByStatus(ctx context.Context) (map[string]int, error)

	CreateAILog(ctx context.Context, e *models.AILogEntry) error
	GetAILog(ctx context.Context, id int64) (*models.AILogEntry, error)
	ListAILogs(ctx context.Context, bookingID int64, pendingOnly bool) ([]*models.AILogEntry, error)
	ResolveAILog(ctx context.Context, id, reviewerID int64, resolution string) error
}

// CacheRepository stores short-lived values such as rendered calendar views.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ChangePublisher announces record changes to live subscribers.
type ChangePublisher interface {
	PublishBooking(op events.Op, b *models.Booking)
	PublishJob(op events.Op, j *models.Job)
	PublishNotification(op events.Op, n *models.Notification)
	PublishConflict(op events.Op, c *models.Conflict)
	PublishStaff(op events.Op, s *models.StaffProfile)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// MessageSender delivers a text message to a chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
	AppendSyncEvent(ctx context.Context, event *models.SyncEvent) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, payload interface{}) error
}
