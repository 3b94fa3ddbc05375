package models

import "time"

// CalendarEvent is derived from a booking or a job for display; it is never stored.
type CalendarEvent struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	EntityID     int64     `json:"entity_id"`
	PropertyID   int64     `json:"property_id"`
	PropertyName string    `json:"property_name,omitempty"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	Color        string    `json:"color"`
	StaffID      int64     `json:"staff_id,omitempty"`
	StaffName    string    `json:"staff_name,omitempty"`
	Conflict     bool      `json:"conflict"`
}

// Conflict is the flagged record written when two ranges overlap.
type Conflict struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"` // booking, staff
	PropertyID   int64      `json:"property_id,omitempty"`
	StaffID      int64      `json:"staff_id,omitempty"`
	FirstID      int64      `json:"first_id"`
	SecondID     int64      `json:"second_id"`
	OverlapStart time.Time  `json:"overlap_start"`
	OverlapEnd   time.Time  `json:"overlap_end"`
	Resolved     bool       `json:"resolved"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
