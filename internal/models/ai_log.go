package models

import "time"

// AILogEntry records an automated approval decision and whether it needs a human.
type AILogEntry struct {
	ID               int64      `json:"id"`
	BookingID        int64      `json:"booking_id"`
	Decision         string     `json:"decision"` // approve, reject, review
	Confidence       float64    `json:"confidence"`
	Reason           string     `json:"reason,omitempty"`
	Model            string     `json:"model,omitempty"`
	Escalated        bool       `json:"escalated"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	ReviewedBy       *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	Resolution       string     `json:"resolution,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (e *AILogEntry) Pending() bool {
	return e.Escalated && e.ReviewedAt == nil
}
