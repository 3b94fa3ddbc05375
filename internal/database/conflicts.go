package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"villaops/internal/models"
)

const conflictColumns = `id, kind, property_id, staff_id, first_id, second_id, overlap_start, overlap_end,
	resolved, resolved_at, created_at`

// UpsertConflict stores a flagged overlap. Re-detecting the same pair
// refreshes the overlap window and reopens it; c.ID is set either way.
func (db *DB) UpsertConflict(ctx context.Context, c *models.Conflict) error {
	query := `INSERT INTO conflicts (kind, property_id, staff_id, first_id, second_id, overlap_start, overlap_end, resolved, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
              ON CONFLICT(kind, first_id, second_id) DO UPDATE SET
                overlap_start = excluded.overlap_start,
                overlap_end = excluded.overlap_end,
                resolved = 0,
                resolved_at = NULL`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		c.Kind, c.PropertyID, c.StaffID, c.FirstID, c.SecondID,
		formatTime(c.OverlapStart), formatTime(c.OverlapEnd), now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conflict: %w", err)
	}

	err = db.QueryRowContext(ctx, `SELECT id, created_at FROM conflicts WHERE kind = ? AND first_id = ? AND second_id = ?`,
		c.Kind, c.FirstID, c.SecondID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read conflict id: %w", err)
	}
	c.Resolved = false
	c.ResolvedAt = nil
	return nil
}

// ListConflicts returns conflicts newest first. An empty kind matches both kinds.
func (db *DB) ListConflicts(ctx context.Context, kind string, unresolvedOnly bool) ([]*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE 1 = 1`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	if unresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) GetConflict(ctx context.Context, id int64) (*models.Conflict, error) {
	c, err := scanConflict(db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return c, nil
}

// ResolveConflict closes one conflict by hand. Returns ErrAlreadyResolved
// when it is closed already.
func (db *DB) ResolveConflict(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE conflicts SET resolved = 1, resolved_at = ? WHERE id = ? AND resolved = 0`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		ok, err := db.exists(ctx, "conflicts", id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("conflict %d: %w", id, ErrNotFound)
		}
		return ErrAlreadyResolved
	}
	return nil
}

// ResolveConflictsFor closes every open conflict of the kind that involves
// entityID and returns the ids of the other side of each pair.
func (db *DB) ResolveConflictsFor(ctx context.Context, kind string, entityID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT first_id, second_id FROM conflicts WHERE kind = ? AND resolved = 0 AND (first_id = ? OR second_id = ?)`,
		kind, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	var others []int64
	for rows.Next() {
		var first, second int64
		if err := rows.Scan(&first, &second); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		if first == entityID {
			others = append(others, second)
		} else {
			others = append(others, first)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`UPDATE conflicts SET resolved = 1, resolved_at = ? WHERE kind = ? AND resolved = 0 AND (first_id = ? OR second_id = ?)`,
		time.Now(), kind, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflicts: %w", err)
	}
	return others, nil
}

// HasOpenConflicts reports whether entityID is part of an unresolved conflict.
func (db *DB) HasOpenConflicts(ctx context.Context, kind string, entityID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE kind = ? AND resolved = 0 AND (first_id = ? OR second_id = ?)`,
		kind, entityID, entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n > 0, nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var c models.Conflict
	var start, end string
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Kind, &c.PropertyID, &c.StaffID, &c.FirstID, &c.SecondID, &start, &end,
		&c.Resolved, &resolvedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.OverlapStart, err = time.Parse(models.TimeLayout, start); err != nil {
		return nil, fmt.Errorf("failed to parse overlap_start %s: %w", start, err)
	}
	if c.OverlapEnd, err = time.Parse(models.TimeLayout, end); err != nil {
		return nil, fmt.Errorf("failed to parse overlap_end %s: %w", end, err)
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}
