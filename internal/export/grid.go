package export

import (
	"fmt"
	"strings"
	"time"

	"villaops/internal/models"
)

// Cell fill colors shared by the xlsx export and the spreadsheet schedule.
const (
	ColorFree     = "#FFFFFF"
	ColorPending  = "#FFEB9C"
	ColorApproved = "#C6EFCE"
	ColorConflict = "#FFC7CE"
)

// Cell is one property night.
type Cell struct {
	Bookings []*models.Booking
}

// Color picks the fill: red for double occupancy or a flagged stay, yellow
// while anything is unconfirmed, green otherwise.
func (c Cell) Color() string {
	if len(c.Bookings) == 0 {
		return ColorFree
	}
	if len(c.Bookings) > 1 {
		return ColorConflict
	}
	b := c.Bookings[0]
	switch {
	case b.Conflict:
		return ColorConflict
	case b.Status == models.StatusPending:
		return ColorPending
	default:
		return ColorApproved
	}
}

func (c Cell) Text() string {
	if len(c.Bookings) == 0 {
		return ""
	}
	lines := make([]string, 0, len(c.Bookings))
	for _, b := range c.Bookings {
		lines = append(lines, fmt.Sprintf("[#%d] %s (%d) %s", b.ID, b.GuestName, b.Guests, b.Status))
	}
	return strings.Join(lines, "\n")
}

// Grid is the occupancy of every property over consecutive nights.
type Grid struct {
	Start      time.Time
	Days       int
	Properties []*models.Property
	Cells      [][]Cell // [property][day]
}

// BuildGrid places each active booking on the nights it occupies. Nights are
// half-open: the check-out day is free.
func BuildGrid(start time.Time, days int, properties []*models.Property, bookings []*models.Booking) *Grid {
	start = models.DateOnly(start)
	g := &Grid{
		Start:      start,
		Days:       days,
		Properties: properties,
		Cells:      make([][]Cell, len(properties)),
	}
	row := make(map[int64]int, len(properties))
	for i, p := range properties {
		row[p.ID] = i
		g.Cells[i] = make([]Cell, days)
	}

	for _, b := range bookings {
		i, ok := row[b.PropertyID]
		if !ok || !b.IsActive() {
			continue
		}
		for d := 0; d < days; d++ {
			night := start.AddDate(0, 0, d)
			if night.Before(models.DateOnly(b.CheckIn)) || !night.Before(models.DateOnly(b.CheckOut)) {
				continue
			}
			g.Cells[i][d].Bookings = append(g.Cells[i][d].Bookings, b)
		}
	}
	return g
}

func (g *Grid) Day(i int) time.Time {
	return g.Start.AddDate(0, 0, i)
}

// End is the first day after the grid.
func (g *Grid) End() time.Time {
	return g.Start.AddDate(0, 0, g.Days)
}

// Occupied counts booked nights per property row.
func (g *Grid) Occupied(row int) int {
	n := 0
	for _, c := range g.Cells[row] {
		if len(c.Bookings) > 0 {
			n++
		}
	}
	return n
}
