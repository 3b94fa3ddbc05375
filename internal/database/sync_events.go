package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"villaops/internal/models"
)

func (db *DB) CreateSyncEvent(ctx context.Context, e *models.SyncEvent) error {
	query := `INSERT INTO sync_events (type, entity_type, entity_id, source, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, e.Type, e.EntityType, e.EntityID, e.Source, e.Payload, now)
	if err != nil {
		return fmt.Errorf("failed to create sync event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// ListSyncEvents returns the newest events first.
func (db *DB) ListSyncEvents(ctx context.Context, f models.SyncEventFilter) ([]*models.SyncEvent, error) {
	var where []string
	var args []any
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != 0 {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}

	query := `SELECT id, type, entity_type, entity_id, source, payload, created_at FROM sync_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync events: %w", err)
	}
	defer rows.Close()

	var events []*models.SyncEvent
	for rows.Next() {
		var e models.SyncEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityType, &e.EntityID, &e.Source, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
