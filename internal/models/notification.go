package models

import "time"

type Notification struct {
	ID        int64      `json:"id"`
	StaffID   int64      `json:"staff_id"`
	Channel   string     `json:"channel"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Read      bool       `json:"read"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
