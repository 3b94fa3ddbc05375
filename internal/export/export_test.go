package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func TestBuildGrid(t *testing.T) {
	props := []*models.Property{{ID: 1, Name: "Villa Azul"}, {ID: 2, Name: "Casa Sol"}}
	bookings := []*models.Booking{
		{ID: 1, PropertyID: 1, GuestName: "Lena", Guests: 2, CheckIn: day("2026-07-01"), CheckOut: day("2026-07-03"), Status: models.StatusApproved},
		{ID: 2, PropertyID: 1, GuestName: "Marc", Guests: 3, CheckIn: day("2026-07-02"), CheckOut: day("2026-07-04"), Status: models.StatusPending, Conflict: true},
		{ID: 3, PropertyID: 2, GuestName: "Ines", Guests: 1, CheckIn: day("2026-06-28"), CheckOut: day("2026-07-02"), Status: models.StatusPending},
		{ID: 4, PropertyID: 2, GuestName: "Tom", Guests: 1, CheckIn: day("2026-07-02"), CheckOut: day("2026-07-04"), Status: models.StatusCancelled},
		{ID: 5, PropertyID: 9, GuestName: "Ghost", Guests: 1, CheckIn: day("2026-07-01"), CheckOut: day("2026-07-02"), Status: models.StatusApproved},
	}

	g := BuildGrid(day("2026-07-01"), 4, props, bookings)
	require.Len(t, g.Cells, 2)
	assert.Equal(t, day("2026-07-05"), g.End())

	assert.Equal(t, ColorApproved, g.Cells[0][0].Color())
	assert.Equal(t, ColorConflict, g.Cells[0][1].Color())
	assert.Len(t, g.Cells[0][1].Bookings, 2)
	assert.Equal(t, ColorConflict, g.Cells[0][2].Color(), "flagged stay")
	assert.Equal(t, ColorFree, g.Cells[0][3].Color())
	assert.Equal(t, 3, g.Occupied(0))

	assert.Equal(t, ColorPending, g.Cells[1][0].Color())
	assert.Equal(t, ColorFree, g.Cells[1][1].Color(), "check-out night is free and cancelled stays are skipped")
	assert.Equal(t, "[#3] Ines (1) pending", g.Cells[1][0].Text())
	assert.Equal(t, "", g.Cells[1][3].Text())
}

func TestWriteWorkbook(t *testing.T) {
	props := []*models.Property{{ID: 1, Name: "Villa Azul"}}
	staffID := int64(7)
	grid := BuildGrid(day("2026-07-01"), 3, props, []*models.Booking{
		{ID: 1, PropertyID: 1, GuestName: "Lena", Guests: 2, CheckIn: day("2026-07-01"), CheckOut: day("2026-07-02"), Status: models.StatusApproved},
	})
	jobs := []*models.Job{{
		ID: 3, PropertyID: 1, Type: models.JobTypeCleaning, Title: "Turnover", StaffID: &staffID,
		Status: models.JobStatusAssigned, ScheduledStart: day("2026-07-02").Add(11 * time.Hour), ScheduledEnd: day("2026-07-02").Add(15 * time.Hour),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, grid, jobs, map[int64]string{7: "Ana"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{scheduleSheet, jobsSheet}, f.GetSheetList())

	v, err := f.GetCellValue(scheduleSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "01.07", v)
	v, _ = f.GetCellValue(scheduleSheet, "A3")
	assert.Equal(t, "Villa Azul (1/3)", v)
	v, _ = f.GetCellValue(scheduleSheet, "B3")
	assert.Equal(t, "[#1] Lena (2) approved", v)

	rows, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, jobHeaders, rows[0])
	assert.Equal(t, []string{"3", "Villa Azul", "cleaning", "Turnover", "Ana", "assigned", "2026-07-02 11:00", "2026-07-02 15:00"}, rows[1])
}

func TestExporter_WriteFile(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "export.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.SyncProperties(ctx, []models.Property{{ID: 1, Name: "Villa Azul", IsActive: true}}))
	require.NoError(t, db.InsertBooking(ctx, &models.Booking{
		PropertyID: 1, GuestName: "Lena", Guests: 2, CheckIn: day("2026-07-01"), CheckOut: day("2026-07-03"),
		Status: models.StatusApproved, Source: models.SourceDirect,
	}))

	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExporter(db, dir, &logger)

	path, err := e.WriteFile(ctx, day("2026-07-01"), 7)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calendar_2026-07-01_to_2026-07-07.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, _ := f.GetCellValue(scheduleSheet, "C3")
	assert.Contains(t, v, "Lena")

	_, err = e.WriteFile(ctx, day("2026-07-01"), 0)
	assert.Error(t, err)
}
