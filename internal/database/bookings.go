package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"villaops/internal/models"
)

const bookingColumns = `id, property_id, property_name, guest_name, guest_email, guest_phone, guests,
	check_in, check_out, status, source, external_ref, total_amount, notes, conflict,
	created_at, updated_at, version`

// activeStatuses occupy a property.
var activeStatuses = []any{models.StatusPending, models.StatusApproved}

// CreateBookingWithLock checks for overlapping active stays and inserts the
// booking inside one transaction. Returns ErrNotAvailable on overlap.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	overlapping, err := overlappingBookings(ctx, tx, booking.PropertyID, booking.CheckIn, booking.CheckOut, 0)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if len(overlapping) > 0 {
		return ErrNotAvailable
	}

	if err := insertBooking(ctx, tx, booking); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertBooking stores a booking without an availability check. Used for
// stays imported from external platforms, which are flagged afterwards.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, db.DB, booking)
}

func insertBooking(ctx context.Context, ex execer, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				property_id, property_name, guest_name, guest_email, guest_phone, guests,
				check_in, check_out, status, source, external_ref, total_amount, notes, conflict,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := ex.ExecContext(ctx, query,
		booking.PropertyID,
		booking.PropertyName,
		booking.GuestName,
		booking.GuestEmail,
		booking.GuestPhone,
		booking.Guests,
		booking.CheckIn.Format(models.DateLayout),
		booking.CheckOut.Format(models.DateLayout),
		booking.Status,
		booking.Source,
		booking.ExternalRef,
		booking.TotalAmount,
		booking.Notes,
		booking.Conflict,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CheckIn = models.DateOnly(booking.CheckIn)
	booking.CheckOut = models.DateOnly(booking.CheckOut)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetBookingByExternalRef finds an imported booking by its platform reference.
func (db *DB) GetBookingByExternalRef(ctx context.Context, source, ref string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE source = ? AND external_ref = ? ORDER BY id LIMIT 1`
	b, err := scanBooking(db.QueryRowContext(ctx, query, source, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s/%s: %w", source, ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by external ref: %w", err)
	}
	return b, nil
}

// ListBookings returns bookings matching the filter ordered by check-in.
// From/To select stays that intersect [From, To).
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var where []string
	var args []any
	if f.PropertyID != 0 {
		where = append(where, "property_id = ?")
		args = append(args, f.PropertyID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.To.IsZero() {
		where = append(where, "check_in < ?")
		args = append(args, f.To.Format(models.DateLayout))
	}
	if !f.From.IsZero() {
		where = append(where, "check_out > ?")
		args = append(args, f.From.Format(models.DateLayout))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY check_in ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return queryBookings(ctx, db.DB, query, args...)
}

// OverlappingBookings returns active bookings of the property that intersect
// [checkIn, checkOut), excluding excludeID.
func (db *DB) OverlappingBookings(ctx context.Context, propertyID int64, checkIn, checkOut time.Time, excludeID int64) ([]*models.Booking, error) {
	return overlappingBookings(ctx, db.DB, propertyID, checkIn, checkOut, excludeID)
}

func overlappingBookings(ctx context.Context, ex execer, propertyID int64, checkIn, checkOut time.Time, excludeID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE property_id = ? AND check_in < ? AND check_out > ? AND id != ?
              AND status IN (` + placeholders(len(activeStatuses)) + `)
              ORDER BY check_in ASC`
	args := []any{propertyID, checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout), excludeID}
	args = append(args, activeStatuses...)
	return queryBookings(ctx, ex, query, args...)
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.versionError(ctx, "bookings", id)
	}
	return nil
}

// ApproveBookingWithLock moves a booking to approved inside one
// transaction, after checking that no other approved stay overlaps it.
// Returns ErrNotAvailable on overlap and ErrConcurrentModification when
// fromVersion is stale.
func (db *DB) ApproveBookingWithLock(ctx context.Context, id, fromVersion int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load booking in tx: %w", err)
	}
	if b.Version != fromVersion {
		return ErrConcurrentModification
	}

	overlapping, err := overlappingBookings(ctx, tx, b.PropertyID, b.CheckIn, b.CheckOut, b.ID)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	for _, o := range overlapping {
		if o.Status == models.StatusApproved {
			return ErrNotAvailable
		}
	}

	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, models.StatusApproved, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to approve booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return tx.Commit()
}

// UpdateBookingStayWithVersion rewrites the guest and stay fields of a
// booking, typically after its source platform changed them.
func (db *DB) UpdateBookingStayWithVersion(ctx context.Context, b *models.Booking) error {
	query := `UPDATE bookings SET guest_name = ?, guest_email = ?, guest_phone = ?, guests = ?,
              check_in = ?, check_out = ?, total_amount = ?, notes = ?,
              version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		b.GuestName,
		b.GuestEmail,
		b.GuestPhone,
		b.Guests,
		b.CheckIn.Format(models.DateLayout),
		b.CheckOut.Format(models.DateLayout),
		b.TotalAmount,
		b.Notes,
		now,
		b.ID,
		b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return db.versionError(ctx, "bookings", b.ID)
	}
	b.CheckIn = models.DateOnly(b.CheckIn)
	b.CheckOut = models.DateOnly(b.CheckOut)
	b.UpdatedAt = now
	b.Version++
	return nil
}

// SetBookingConflict flips the conflict flag without bumping the version;
// the flag is derived state, not a user edit.
func (db *DB) SetBookingConflict(ctx context.Context, id int64, conflict bool) error {
	query := `UPDATE bookings SET conflict = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, conflict, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set booking conflict: %w", err)
	}
	return nil
}

// GetAvailabilityForPeriod returns one entry per night starting at startDate.
func (db *DB) GetAvailabilityForPeriod(ctx context.Context, propertyID int64, startDate time.Time, days int) ([]*models.Availability, error) {
	if days <= 0 {
		return nil, nil
	}
	start := models.DateOnly(startDate)
	end := start.AddDate(0, 0, days)

	bookings, err := db.OverlappingBookings(ctx, propertyID, start, end, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}

	availability := make([]*models.Availability, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		entry := &models.Availability{Date: date, PropertyID: propertyID, Available: true}
		for _, b := range bookings {
			if !date.Before(b.CheckIn) && date.Before(b.CheckOut) {
				entry.Available = false
				entry.BookingID = b.ID
				break
			}
		}
		availability = append(availability, entry)
	}
	return availability, nil
}

func queryBookings(ctx context.Context, ex execer, query string, args ...any) ([]*models.Booking, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var checkIn, checkOut string
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.PropertyName, &b.GuestName, &b.GuestEmail, &b.GuestPhone, &b.Guests,
		&checkIn, &checkOut, &b.Status, &b.Source, &b.ExternalRef, &b.TotalAmount, &b.Notes, &b.Conflict,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if b.CheckIn, err = time.Parse(models.DateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check_in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = time.Parse(models.DateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check_out %s: %w", checkOut, err)
	}
	return &b, nil
}
