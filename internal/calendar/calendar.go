// Package calendar turns bookings and jobs into calendar events, serves
// cached calendar views and keeps live views conflict-aware.
package calendar

import (
	"fmt"
	"time"

	"villaops/internal/models"
)

const ConflictColor = "#d32f2f"

var bookingColors = map[string]string{
	models.StatusPending:   "#f9a825",
	models.StatusApproved:  "#2e7d32",
	models.StatusRejected:  "#9e9e9e",
	models.StatusCancelled: "#bdbdbd",
	models.StatusCompleted: "#1565c0",
}

var jobColors = map[string]string{
	models.JobTypeCleaning:    "#00897b",
	models.JobTypeMaintenance: "#6d4c41",
	models.JobTypeInspection:  "#5e35b1",
	models.JobTypeCheckIn:     "#039be5",
	models.JobTypeCheckOut:    "#3949ab",
}

const defaultColor = "#757575"

// BookingColor returns the display color for a booking status.
func BookingColor(status string) string {
	if c, ok := bookingColors[status]; ok {
		return c
	}
	return defaultColor
}

// JobColor returns the display color for a job type.
func JobColor(jobType string) string {
	if c, ok := jobColors[jobType]; ok {
		return c
	}
	return defaultColor
}

func FromBooking(b *models.Booking) models.CalendarEvent {
	ev := models.CalendarEvent{
		ID:           fmt.Sprintf("%s-%d", models.EventKindBooking, b.ID),
		Kind:         models.EventKindBooking,
		EntityID:     b.ID,
		PropertyID:   b.PropertyID,
		PropertyName: b.PropertyName,
		Title:        fmt.Sprintf("%s (%d)", b.GuestName, b.Guests),
		Start:        models.DateOnly(b.CheckIn),
		End:          models.DateOnly(b.CheckOut),
		Status:       b.Status,
		Color:        BookingColor(b.Status),
		Conflict:     b.Conflict,
	}
	if ev.Conflict {
		ev.Color = ConflictColor
	}
	return ev
}

// FromJob maps a job; propertyName and staffName are optional display labels.
func FromJob(j *models.Job, propertyName, staffName string) models.CalendarEvent {
	ev := models.CalendarEvent{
		ID:           fmt.Sprintf("%s-%d", models.EventKindJob, j.ID),
		Kind:         models.EventKindJob,
		EntityID:     j.ID,
		PropertyID:   j.PropertyID,
		PropertyName: propertyName,
		Title:        j.Title,
		Start:        j.ScheduledStart,
		End:          j.ScheduledEnd,
		Status:       j.Status,
		Color:        JobColor(j.Type),
		StaffName:    staffName,
	}
	if j.StaffID != nil {
		ev.StaffID = *j.StaffID
	}
	return ev
}

// MarkConflict flags the event and switches it to the conflict color.
func MarkConflict(ev *models.CalendarEvent) {
	ev.Conflict = true
	ev.Color = ConflictColor
}

// Query selects calendar events. From/To bound a half-open window; StaffID
// restricts jobs only.
type Query struct {
	From       time.Time
	To         time.Time
	PropertyID int64
	StaffID    int64
	Kinds      []string
}

func (q Query) wants(kind string) bool {
	if len(q.Kinds) == 0 {
		return true
	}
	for _, k := range q.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Match reports whether ev belongs to the query.
func (q Query) Match(ev models.CalendarEvent) bool {
	if !q.wants(ev.Kind) {
		return false
	}
	if q.PropertyID != 0 && ev.PropertyID != q.PropertyID {
		return false
	}
	if q.StaffID != 0 && ev.Kind == models.EventKindJob && ev.StaffID != q.StaffID {
		return false
	}
	if !q.To.IsZero() && !ev.Start.Before(q.To) {
		return false
	}
	if !q.From.IsZero() && !ev.End.After(q.From) {
		return false
	}
	return true
}

func (q Query) cacheKey() string {
	return fmt.Sprintf("%s%s:%s:%d:%d:%v", cachePrefix,
		q.From.UTC().Format(models.TimeLayout), q.To.UTC().Format(models.TimeLayout),
		q.PropertyID, q.StaffID, q.Kinds)
}
