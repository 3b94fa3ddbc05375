package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newBooking(propertyID int64, in, out string) *models.Booking {
	return &models.Booking{
		PropertyID:   propertyID,
		PropertyName: "Villa",
		GuestName:    "Guest",
		Guests:       2,
		CheckIn:      date(in),
		CheckOut:     date(out),
		Status:       models.StatusPending,
		Source:       models.SourceDirect,
	}
}

func TestCreateBookingWithLock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	first := newBooking(1, "2026-07-01", "2026-07-05")
	require.NoError(t, db.CreateBookingWithLock(ctx, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, int64(1), first.Version)

	t.Run("overlap rejected", func(t *testing.T) {
		err := db.CreateBookingWithLock(ctx, newBooking(1, "2026-07-04", "2026-07-08"))
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("back to back allowed", func(t *testing.T) {
		assert.NoError(t, db.CreateBookingWithLock(ctx, newBooking(1, "2026-07-05", "2026-07-07")))
	})

	t.Run("other property allowed", func(t *testing.T) {
		assert.NoError(t, db.CreateBookingWithLock(ctx, newBooking(2, "2026-07-01", "2026-07-05")))
	})

	t.Run("cancelled stay frees dates", func(t *testing.T) {
		require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, first.ID, first.Version, models.StatusCancelled))
		assert.NoError(t, db.CreateBookingWithLock(ctx, newBooking(1, "2026-07-02", "2026-07-04")))
	})
}

func TestGetBookingRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newBooking(1, "2026-08-10", "2026-08-14")
	b.Source = models.SourceAirbnb
	b.ExternalRef = "HM123"
	b.TotalAmount = 840.5
	require.NoError(t, db.InsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2026-08-10"), got.CheckIn)
	assert.Equal(t, date("2026-08-14"), got.CheckOut)
	assert.Equal(t, 4, got.Nights())
	assert.Equal(t, 840.5, got.TotalAmount)

	byRef, err := db.GetBookingByExternalRef(ctx, models.SourceAirbnb, "HM123")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byRef.ID)

	_, err = db.GetBookingByExternalRef(ctx, models.SourceBookingCom, "HM123")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.InsertBooking(ctx, newBooking(1, "2026-07-01", "2026-07-05")))
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, "2026-07-10", "2026-07-12")))
	require.NoError(t, db.InsertBooking(ctx, newBooking(2, "2026-07-03", "2026-07-04")))

	all, err := db.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inWindow, err := db.ListBookings(ctx, models.BookingFilter{PropertyID: 1, From: date("2026-07-05"), To: date("2026-07-11")})
	require.NoError(t, err)
	require.Len(t, inWindow, 1, "stay ending on From is excluded")
	assert.Equal(t, date("2026-07-10"), inWindow[0].CheckIn)

	limited, err := db.ListBookings(ctx, models.BookingFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newBooking(1, "2026-07-01", "2026-07-05")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusApproved))

	err := db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusRejected)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = db.UpdateBookingStatusWithVersion(ctx, 404, 1, models.StatusRejected)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, int64(2), got.Version)

	require.NoError(t, db.SetBookingConflict(ctx, b.ID, true))
	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Conflict)
	assert.Equal(t, int64(2), got.Version)
}

func TestGetAvailabilityForPeriod(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newBooking(1, "2026-07-02", "2026-07-04")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	availability, err := db.GetAvailabilityForPeriod(ctx, 1, date("2026-07-01"), 4)
	require.NoError(t, err)
	require.Len(t, availability, 4)

	assert.True(t, availability[0].Available)
	assert.False(t, availability[1].Available)
	assert.Equal(t, b.ID, availability[1].BookingID)
	assert.False(t, availability[2].Available)
	assert.True(t, availability[3].Available, "checkout day is free")

	empty, err := db.GetAvailabilityForPeriod(ctx, 1, date("2026-07-01"), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.CreateBookingWithLock(ctx, newBooking(1, "2026-09-01", "2026-09-08"))
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.True(t, errors.Is(err, ErrNotAvailable), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successCount, "only one overlapping booking may be stored")

	stored, err := db.OverlappingBookings(ctx, 1, date("2026-09-01"), date("2026-09-08"), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestConcurrentApproval(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "approval.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	for round := 0; round < 50; round++ {
		in := date("2026-09-01").AddDate(0, 0, round*10)
		a := newBooking(1, in.Format(models.DateLayout), in.AddDate(0, 0, 4).Format(models.DateLayout))
		a.Source = models.SourceAirbnb
		b := newBooking(1, in.AddDate(0, 0, 2).Format(models.DateLayout), in.AddDate(0, 0, 6).Format(models.DateLayout))
		b.Source = models.SourceBookingCom
		require.NoError(t, db.InsertBooking(ctx, a))
		require.NoError(t, db.InsertBooking(ctx, b))

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, id := range []int64{a.ID, b.ID} {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				results <- db.ApproveBookingWithLock(ctx, id, 1)
			}(id)
		}
		wg.Wait()
		close(results)

		approved := 0
		for err := range results {
			if err == nil {
				approved++
				continue
			}
			assert.ErrorIs(t, err, ErrNotAvailable)
		}
		require.Equal(t, 1, approved, "round %d: exactly one overlapping stay may be approved", round)
	}
}

func TestApproveBookingWithLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking(1, "2026-10-01", "2026-10-04")
	require.NoError(t, db.InsertBooking(ctx, b))

	assert.ErrorIs(t, db.ApproveBookingWithLock(ctx, b.ID, b.Version+1), ErrConcurrentModification)
	assert.ErrorIs(t, db.ApproveBookingWithLock(ctx, 999, 1), ErrNotFound)

	require.NoError(t, db.ApproveBookingWithLock(ctx, b.ID, b.Version))
	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, b.Version+1, stored.Version)

	// the approved stay now blocks the overlapping one
	other := newBooking(1, "2026-10-03", "2026-10-05")
	require.NoError(t, db.InsertBooking(ctx, other))
	assert.ErrorIs(t, db.ApproveBookingWithLock(ctx, other.ID, other.Version), ErrNotAvailable)
}

func TestUpdateBookingStayWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking(1, "2026-10-01", "2026-10-04")
	require.NoError(t, db.InsertBooking(ctx, b))

	moved := *b
	moved.CheckIn = date("2026-10-20")
	moved.CheckOut = date("2026-10-23")
	moved.Guests = 4
	require.NoError(t, db.UpdateBookingStayWithVersion(ctx, &moved))
	assert.Equal(t, b.Version+1, moved.Version)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2026-10-20"), stored.CheckIn)
	assert.Equal(t, 4, stored.Guests)
	assert.Equal(t, moved.Version, stored.Version)

	// the original copy is stale now
	assert.ErrorIs(t, db.UpdateBookingStayWithVersion(ctx, b), ErrConcurrentModification)
}
