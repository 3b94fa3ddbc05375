package models

import "time"

const (
	SyncStatusPending    = "pending"
	SyncStatusRetry      = "retry"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// Sheets task types.
const (
	TaskUpsertBooking = "upsert_booking"
	TaskUpdateStatus  = "update_status"
	TaskDeleteBooking = "delete_booking"
	TaskAppendEvent   = "append_sync_event"
	TaskSyncSchedule  = "sync_schedule"
)

// SyncTask is a queued push of booking state to the external spreadsheet.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
