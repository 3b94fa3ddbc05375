package models

import "time"

// Job is a unit of staff work linked to a property and optionally a booking.
type Job struct {
	ID             int64     `json:"id"`
	PropertyID     int64     `json:"property_id"`
	BookingID      *int64    `json:"booking_id,omitempty"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	StaffID        *int64    `json:"staff_id,omitempty"`
	Status         string    `json:"status"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

func (j *Job) IsActive() bool {
	return j.Status != JobStatusCompleted && j.Status != JobStatusCancelled
}

func (j *Job) AssignedTo(staffID int64) bool {
	return j.StaffID != nil && *j.StaffID == staffID
}

type JobFilter struct {
	PropertyID int64
	StaffID    int64
	BookingID  int64
	Status     string
	From       time.Time
	To         time.Time
}
