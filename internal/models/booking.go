package models

import "time"

type Booking struct {
	ID           int64     `json:"id"`
	PropertyID   int64     `json:"property_id"`
	PropertyName string    `json:"property_name"`
	GuestName    string    `json:"guest_name"`
	GuestEmail   string    `json:"guest_email"`
	GuestPhone   string    `json:"guest_phone"`
	Guests       int       `json:"guests"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	Status       string    `json:"status"` // pending, approved, rejected, cancelled, completed
	Source       string    `json:"source"`
	ExternalRef  string    `json:"external_ref,omitempty"`
	TotalAmount  float64   `json:"total_amount"`
	Notes        string    `json:"notes,omitempty"`
	Conflict     bool      `json:"conflict"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// Nights returns the number of nights between check-in and check-out.
func (b *Booking) Nights() int {
	return int(DateOnly(b.CheckOut).Sub(DateOnly(b.CheckIn)).Hours() / 24)
}

// IsActive reports whether the booking still occupies the property.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusApproved
}

type BookingFilter struct {
	PropertyID int64
	Status     string
	From       time.Time
	To         time.Time
	Limit      int
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
