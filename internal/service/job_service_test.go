package service

import (
	"context"
	"testing"
	"time"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newJob(propertyID int64, jobType string, start time.Time, hours int) *models.Job {
	return &models.Job{
		PropertyID:     propertyID,
		Type:           jobType,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Duration(hours) * time.Hour),
	}
}

func TestJobService_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ana := h.addStaff(t, "Ana", models.RoleCleaner, 555)
	h.sender.On("SendMessage", mock.Anything, int64(555), mock.Anything).Return(nil)

	j := newJob(1, models.JobTypeMaintenance, day("2026-07-02").Add(9*time.Hour), 2)
	require.NoError(t, h.jobs.Create(ctx, j))
	assert.Equal(t, "Maintenance", j.Title)
	assert.Equal(t, models.JobStatusPending, j.Status)

	_, err := h.jobs.Start(ctx, j.ID, 0)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)

	assigned, err := h.jobs.Assign(ctx, j.ID, ana.ID, j.Version)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.StaffID)
	assert.Equal(t, ana.ID, *assigned.StaffID)

	notes, err := h.notifications.List(ctx, ana.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "New job assigned", notes[0].Title)
	assert.Equal(t, models.ChannelTelegram, notes[0].Channel)
	assert.NotNil(t, notes[0].SentAt)
	h.sender.AssertNumberOfCalls(t, "SendMessage", 1)

	_, err = h.jobs.Start(ctx, j.ID, j.Version)
	assert.ErrorIs(t, err, database.ErrConcurrentModification)

	started, err := h.jobs.Start(ctx, j.ID, assigned.Version)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, started.Status)

	done, err := h.jobs.Complete(ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	_, err = h.jobs.Cancel(ctx, j.ID, 0)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)
}

func TestJobService_AssignChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ana := h.addStaff(t, "Ana", models.RoleCleaner, 0)
	ben := h.addStaff(t, "Ben", models.RoleMaintenance, 0)
	_, err := h.staff.Deactivate(ctx, ben.ID)
	require.NoError(t, err)

	morning := day("2026-07-02").Add(9 * time.Hour)
	first := newJob(1, models.JobTypeCleaning, morning, 3)
	first.StaffID = &ana.ID
	require.NoError(t, h.jobs.Create(ctx, first))
	assert.Equal(t, models.JobStatusAssigned, first.Status)

	overlapping := newJob(2, models.JobTypeInspection, morning.Add(2*time.Hour), 2)
	require.NoError(t, h.jobs.Create(ctx, overlapping))

	_, err = h.jobs.Assign(ctx, overlapping.ID, ana.ID, 0)
	assert.ErrorIs(t, err, database.ErrStaffBusy)

	_, err = h.jobs.Assign(ctx, overlapping.ID, ben.ID, 0)
	assert.ErrorIs(t, err, database.ErrValidation)

	_, err = h.jobs.Assign(ctx, overlapping.ID, 404, 0)
	assert.ErrorIs(t, err, database.ErrNotFound)

	// Adjacent windows do not overlap.
	after := newJob(2, models.JobTypeInspection, morning.Add(3*time.Hour), 1)
	after.StaffID = &ana.ID
	assert.NoError(t, h.jobs.Create(ctx, after))

	// A cancelled job frees the slot.
	_, err = h.jobs.Cancel(ctx, first.ID, 0)
	require.NoError(t, err)
	_, err = h.jobs.Assign(ctx, overlapping.ID, ana.ID, 0)
	assert.ErrorIs(t, err, database.ErrStaffBusy, "still overlaps the adjacent job")

	moved := newJob(1, models.JobTypeCleaning, morning, 2)
	moved.StaffID = &ana.ID
	assert.NoError(t, h.jobs.Create(ctx, moved))
}

func TestJobService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := day("2026-07-02").Add(9 * time.Hour)

	assert.ErrorIs(t, h.jobs.Create(ctx, newJob(1, "gardening", start, 1)), database.ErrValidation)
	assert.ErrorIs(t, h.jobs.Create(ctx, newJob(1, models.JobTypeCleaning, start, 0)), database.ErrValidation)
	assert.ErrorIs(t, h.jobs.Create(ctx, newJob(99, models.JobTypeCleaning, start, 1)), database.ErrNotFound)
}

func TestJobService_ScheduleCleaningIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b := newStay(1, "Lena", "2026-07-01", "2026-07-05")
	require.NoError(t, h.bookings.Create(ctx, b))

	first, err := h.jobs.ScheduleCleaning(ctx, b)
	require.NoError(t, err)
	second, err := h.jobs.ScheduleCleaning(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, first.BookingID)
	assert.Equal(t, b.ID, *first.BookingID)
	assert.Equal(t, "Cleaning after Lena", first.Title)
}

func TestJobService_CancelNotifiesStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ana := h.addStaff(t, "Ana", models.RoleCleaner, 0)
	j := newJob(1, models.JobTypeCheckIn, day("2026-07-02").Add(15*time.Hour), 1)
	j.StaffID = &ana.ID
	require.NoError(t, h.jobs.Create(ctx, j))

	_, err := h.jobs.Cancel(ctx, j.ID, 0)
	require.NoError(t, err)

	notes, err := h.notifications.List(ctx, ana.ID, false, 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "Job cancelled", notes[0].Title)
	assert.Equal(t, models.ChannelInApp, notes[0].Channel)
	h.sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}
