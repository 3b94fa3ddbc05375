// Package conflict detects overlapping booking stays and staff jobs.
//
// All ranges are half-open: a stay from June 1 to June 5 occupies the nights
// of the 1st through the 4th, so a guest checking in on June 5 does not
// collide with it.
package conflict

import (
	"sort"
	"time"

	"villaops/internal/models"
)

// Range is a half-open time interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the range has positive length.
func (r Range) Valid() bool {
	return r.Start.Before(r.End)
}

// Overlaps reports whether a and b share any instant. Empty or inverted
// ranges overlap nothing.
func Overlaps(a, b Range) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Intersection returns the shared part of a and b.
func Intersection(a, b Range) (Range, bool) {
	if !Overlaps(a, b) {
		return Range{}, false
	}
	out := Range{Start: a.Start, End: a.End}
	if b.Start.After(out.Start) {
		out.Start = b.Start
	}
	if b.End.Before(out.End) {
		out.End = b.End
	}
	return out, true
}

func BookingRange(b *models.Booking) Range {
	return Range{Start: models.DateOnly(b.CheckIn), End: models.DateOnly(b.CheckOut)}
}

func JobRange(j *models.Job) Range {
	return Range{Start: j.ScheduledStart, End: j.ScheduledEnd}
}

// FindBookingConflicts returns a conflict record for every active booking of
// the same property that overlaps the candidate. The candidate itself is
// skipped by ID. Returned records are not yet persisted.
func FindBookingConflicts(candidate *models.Booking, existing []*models.Booking) []models.Conflict {
	var out []models.Conflict
	cr := BookingRange(candidate)
	for _, other := range existing {
		if other == nil || other.PropertyID != candidate.PropertyID || !other.IsActive() {
			continue
		}
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		overlap, ok := Intersection(cr, BookingRange(other))
		if !ok {
			continue
		}
		out = append(out, bookingConflict(candidate, other, overlap))
	}
	return out
}

// FindStaffConflicts returns conflicts between job and every other active
// job assigned to the same staff member.
func FindStaffConflicts(job *models.Job, jobs []*models.Job) []models.Conflict {
	if job.StaffID == nil {
		return nil
	}
	staffID := *job.StaffID
	jr := JobRange(job)

	var out []models.Conflict
	for _, other := range jobs {
		if other == nil || !other.AssignedTo(staffID) || !other.IsActive() {
			continue
		}
		if job.ID != 0 && other.ID == job.ID {
			continue
		}
		overlap, ok := Intersection(jr, JobRange(other))
		if !ok {
			continue
		}
		out = append(out, models.Conflict{
			Kind:         models.ConflictKindStaff,
			PropertyID:   job.PropertyID,
			StaffID:      staffID,
			FirstID:      minID(job.ID, other.ID),
			SecondID:     maxID(job.ID, other.ID),
			OverlapStart: overlap.Start,
			OverlapEnd:   overlap.End,
		})
	}
	return out
}

// ScanBookings finds every overlapping pair of active bookings, grouped by
// property. Bookings are sorted by check-in and swept, so only ranges that
// can still overlap are compared.
func ScanBookings(bookings []*models.Booking) []models.Conflict {
	byProperty := make(map[int64][]*models.Booking)
	for _, b := range bookings {
		if b == nil || !b.IsActive() || !BookingRange(b).Valid() {
			continue
		}
		byProperty[b.PropertyID] = append(byProperty[b.PropertyID], b)
	}

	propertyIDs := make([]int64, 0, len(byProperty))
	for id := range byProperty {
		propertyIDs = append(propertyIDs, id)
	}
	sort.Slice(propertyIDs, func(i, j int) bool { return propertyIDs[i] < propertyIDs[j] })

	var out []models.Conflict
	for _, pid := range propertyIDs {
		list := byProperty[pid]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].CheckIn.Equal(list[j].CheckIn) {
				return list[i].ID < list[j].ID
			}
			return list[i].CheckIn.Before(list[j].CheckIn)
		})

		var open []*models.Booking
		for _, b := range list {
			br := BookingRange(b)
			kept := open[:0]
			for _, o := range open {
				if BookingRange(o).End.After(br.Start) {
					kept = append(kept, o)
				}
			}
			open = kept
			for _, o := range open {
				if overlap, ok := Intersection(BookingRange(o), br); ok {
					out = append(out, bookingConflict(o, b, overlap))
				}
			}
			open = append(open, b)
		}
	}
	return out
}

func bookingConflict(a, b *models.Booking, overlap Range) models.Conflict {
	return models.Conflict{
		Kind:         models.ConflictKindBooking,
		PropertyID:   a.PropertyID,
		FirstID:      minID(a.ID, b.ID),
		SecondID:     maxID(a.ID, b.ID),
		OverlapStart: overlap.Start,
		OverlapEnd:   overlap.End,
	}
}

func minID(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxID(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
