package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"villaops/internal/models"
)

// SyncProperties upserts the catalog into the properties table and refreshes
// the in-memory cache. Properties missing from the catalog are deactivated,
// never deleted, so historical bookings keep their reference.
func (db *DB) SyncProperties(ctx context.Context, properties []models.Property) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	query := `INSERT INTO properties (id, name, address, bedrooms, max_guests, sort_order, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  address = excluded.address,
                  bedrooms = excluded.bedrooms,
                  max_guests = excluded.max_guests,
                  sort_order = excluded.sort_order,
                  is_active = excluded.is_active,
                  updated_at = excluded.updated_at`

	keep := make([]any, 0, len(properties))
	for _, p := range properties {
		if _, err := tx.ExecContext(ctx, query,
			p.ID, p.Name, p.Address, p.Bedrooms, p.MaxGuests, p.SortOrder, p.IsActive, now, now,
		); err != nil {
			return fmt.Errorf("failed to upsert property %d: %w", p.ID, err)
		}
		keep = append(keep, p.ID)
	}

	deactivate := `UPDATE properties SET is_active = 0, updated_at = ? WHERE is_active = 1`
	args := []any{now}
	if len(keep) > 0 {
		deactivate += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, deactivate, args...); err != nil {
		return fmt.Errorf("failed to deactivate removed properties: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit properties: %w", err)
	}

	return db.refreshPropertyCache(ctx)
}

func (db *DB) refreshPropertyCache(ctx context.Context) error {
	list, err := db.queryProperties(ctx, false)
	if err != nil {
		return err
	}
	cache := make(map[int64]models.Property, len(list))
	for _, p := range list {
		cache[p.ID] = *p
	}
	db.mu.Lock()
	db.properties = cache
	db.mu.Unlock()
	return nil
}

func (db *DB) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	db.mu.RLock()
	p, ok := db.properties[id]
	db.mu.RUnlock()
	if ok {
		return &p, nil
	}

	var prop models.Property
	query := `SELECT id, name, address, bedrooms, max_guests, sort_order, is_active, created_at, updated_at FROM properties WHERE id = ?`
	err := scanProperty(db.QueryRowContext(ctx, query, id), &prop)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &prop, nil
}

// ListProperties returns properties ordered for display.
func (db *DB) ListProperties(ctx context.Context, activeOnly bool) ([]*models.Property, error) {
	return db.queryProperties(ctx, activeOnly)
}

func (db *DB) queryProperties(ctx context.Context, activeOnly bool) ([]*models.Property, error) {
	query := `SELECT id, name, address, bedrooms, max_guests, sort_order, is_active, created_at, updated_at FROM properties`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		p := &models.Property{}
		if err := scanProperty(rows, p); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].ID < out[j].ID
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func scanProperty(row rowScanner, p *models.Property) error {
	return row.Scan(&p.ID, &p.Name, &p.Address, &p.Bedrooms, &p.MaxGuests, &p.SortOrder, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
