package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"villaops/internal/models"
)

const aiLogColumns = `id, booking_id, decision, confidence, reason, model, escalated, escalation_reason,
	reviewed_by, reviewed_at, resolution, created_at`

func (db *DB) CreateAILog(ctx context.Context, e *models.AILogEntry) error {
	query := `INSERT INTO ai_logs (booking_id, decision, confidence, reason, model, escalated, escalation_reason, resolution, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		e.BookingID, e.Decision, e.Confidence, e.Reason, e.Model, e.Escalated, e.EscalationReason, e.Resolution, now)
	if err != nil {
		return fmt.Errorf("failed to create ai log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

func (db *DB) GetAILog(ctx context.Context, id int64) (*models.AILogEntry, error) {
	e, err := scanAILog(db.QueryRowContext(ctx, `SELECT `+aiLogColumns+` FROM ai_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ai log %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ai log: %w", err)
	}
	return e, nil
}

// ListAILogs returns entries newest first. bookingID 0 matches every booking.
func (db *DB) ListAILogs(ctx context.Context, bookingID int64, pendingOnly bool) ([]*models.AILogEntry, error) {
	query := `SELECT ` + aiLogColumns + ` FROM ai_logs WHERE 1 = 1`
	var args []any
	if bookingID != 0 {
		query += ` AND booking_id = ?`
		args = append(args, bookingID)
	}
	if pendingOnly {
		query += ` AND escalated = 1 AND reviewed_at IS NULL`
	}
	query += ` ORDER BY id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AILogEntry
	for rows.Next() {
		e, err := scanAILog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveAILog records a human review of an escalated entry.
func (db *DB) ResolveAILog(ctx context.Context, id, reviewerID int64, resolution string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE ai_logs SET reviewed_by = ?, reviewed_at = ?, resolution = ? WHERE id = ? AND escalated = 1 AND reviewed_at IS NULL`,
		reviewerID, time.Now(), resolution, id)
	if err != nil {
		return fmt.Errorf("failed to resolve ai log: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		ok, err := db.exists(ctx, "ai_logs", id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ai log %d: %w", id, ErrNotFound)
		}
		return ErrAlreadyResolved
	}
	return nil
}

func scanAILog(row rowScanner) (*models.AILogEntry, error) {
	var e models.AILogEntry
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(&e.ID, &e.BookingID, &e.Decision, &e.Confidence, &e.Reason, &e.Model, &e.Escalated,
		&e.EscalationReason, &reviewedBy, &reviewedAt, &e.Resolution, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		e.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		e.ReviewedAt = &reviewedAt.Time
	}
	return &e, nil
}
