package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"villaops/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (staff_id, channel, title, body, is_read, sent_at, error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, n.StaffID, n.Channel, n.Title, n.Body, n.Read, n.SentAt, n.Error, now)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

// MarkNotificationSent records the delivery outcome. An empty errMsg means delivered.
func (db *DB) MarkNotificationSent(ctx context.Context, id int64, errMsg string) error {
	var sentAt *time.Time
	if errMsg == "" {
		now := time.Now()
		sentAt = &now
	}
	result, err := db.ExecContext(ctx, `UPDATE notifications SET sent_at = ?, error = ? WHERE id = ?`, sentAt, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) MarkNotificationRead(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT id, staff_id, channel, title, body, is_read, sent_at, error, created_at FROM notifications WHERE id = ?`
	n, err := scanNotification(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the newest notifications of a staff member first.
func (db *DB) ListNotifications(ctx context.Context, staffID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `SELECT id, staff_id, channel, title, body, is_read, sent_at, error, created_at
              FROM notifications WHERE staff_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := db.QueryContext(ctx, query, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var sentAt sql.NullTime
	if err := row.Scan(&n.ID, &n.StaffID, &n.Channel, &n.Title, &n.Body, &n.Read, &sentAt, &n.Error, &n.CreatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	return &n, nil
}
