package models

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	JobStatusPending    = "pending"
	JobStatusAssigned   = "assigned"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

const (
	JobTypeCleaning    = "cleaning"
	JobTypeMaintenance = "maintenance"
	JobTypeInspection  = "inspection"
	JobTypeCheckIn     = "check_in"
	JobTypeCheckOut    = "check_out"
)

const (
	RoleCleaner     = "cleaner"
	RoleMaintenance = "maintenance"
	RoleConcierge   = "concierge"
	RoleManager     = "manager"
)

const (
	ChannelInApp    = "in_app"
	ChannelTelegram = "telegram"
)

const (
	SourceDirect     = "direct"
	SourceWebhook    = "webhook"
	SourceAirbnb     = "airbnb"
	SourceBookingCom = "booking_com"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionReview  = "review"
)

const (
	ConflictKindBooking = "booking"
	ConflictKindStaff   = "staff"
)

const (
	EventKindBooking = "booking"
	EventKindJob     = "job"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DateLayout is the wire and storage format for booking dates.
	DateLayout = "2006-01-02"

	// TimeLayout is the storage format for job times (always UTC).
	TimeLayout = "2006-01-02T15:04:05Z"

	// DefaultCacheTTL time to live for cached calendar views, seconds
	DefaultCacheTTL = 5 * 60

	// ReminderHour hour of the daily staff job digest
	ReminderHour = 8

	// WorkerQueueSize in-memory sync queue size
	WorkerQueueSize = 128

	// DefaultListLimit page size for list endpoints
	DefaultListLimit = 100

	// SubscriberBuffer pending changes per real-time subscriber
	SubscriberBuffer = 256

	// WebhookRateLimit requests per source within WebhookRateWindow seconds
	WebhookRateLimit  = 60
	WebhookRateWindow = 60
)
