package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"villaops/internal/models"
)

const staffColumns = `id, name, email, phone, role, telegram_chat_id, is_active, created_at, updated_at`

func (db *DB) CreateStaff(ctx context.Context, s *models.StaffProfile) error {
	query := `INSERT INTO staff (name, email, phone, role, telegram_chat_id, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, s.Name, s.Email, s.Phone, s.Role, s.TelegramChatID, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (db *DB) UpdateStaff(ctx context.Context, s *models.StaffProfile) error {
	query := `UPDATE staff SET name = ?, email = ?, phone = ?, role = ?, telegram_chat_id = ?, is_active = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, s.Name, s.Email, s.Phone, s.Role, s.TelegramChatID, s.IsActive, now, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update staff: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("staff %d: %w", s.ID, ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

func (db *DB) GetStaff(ctx context.Context, id int64) (*models.StaffProfile, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = ?`
	s, err := scanStaff(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return s, nil
}

// ListStaff returns staff ordered by name. An empty role matches every role.
func (db *DB) ListStaff(ctx context.Context, role string, activeOnly bool) ([]*models.StaffProfile, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE 1 = 1`
	var args []any
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []*models.StaffProfile
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

func scanStaff(row rowScanner) (*models.StaffProfile, error) {
	var s models.StaffProfile
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Role, &s.TelegramChatID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
