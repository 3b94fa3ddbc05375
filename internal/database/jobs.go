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

const jobColumns = `id, property_id, booking_id, type, title, staff_id, status,
	scheduled_start, scheduled_end, notes, created_at, updated_at, version`

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (
				property_id, booking_id, type, title, staff_id, status,
				scheduled_start, scheduled_end, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		job.PropertyID,
		job.BookingID,
		job.Type,
		job.Title,
		job.StaffID,
		job.Status,
		formatTime(job.ScheduledStart),
		formatTime(job.ScheduledEnd),
		job.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.ScheduledStart = job.ScheduledStart.UTC().Truncate(time.Second)
	job.ScheduledEnd = job.ScheduledEnd.UTC().Truncate(time.Second)
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Version = 1
	return nil
}

func (db *DB) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	j, err := scanJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs ordered by scheduled start. From/To select jobs
// whose window intersects [From, To).
func (db *DB) ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	var where []string
	var args []any
	if f.PropertyID != 0 {
		where = append(where, "property_id = ?")
		args = append(args, f.PropertyID)
	}
	if f.StaffID != 0 {
		where = append(where, "staff_id = ?")
		args = append(args, f.StaffID)
	}
	if f.BookingID != 0 {
		where = append(where, "booking_id = ?")
		args = append(args, f.BookingID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_start < ?")
		args = append(args, formatTime(f.To))
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_end > ?")
		args = append(args, formatTime(f.From))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY scheduled_start ASC, id ASC`
	return db.queryJobs(ctx, query, args...)
}

// StaffJobsInRange returns the active jobs of a staff member that intersect
// [start, end), excluding excludeID.
func (db *DB) StaffJobsInRange(ctx context.Context, staffID int64, start, end time.Time, excludeID int64) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
              WHERE staff_id = ? AND scheduled_start < ? AND scheduled_end > ? AND id != ?
              AND status NOT IN (?, ?)
              ORDER BY scheduled_start ASC`
	return db.queryJobs(ctx, query, staffID, formatTime(end), formatTime(start), excludeID,
		models.JobStatusCompleted, models.JobStatusCancelled)
}

// UpdateJobWithVersion writes assignment, status, schedule and notes when the
// stored version still equals job.Version, then bumps job.Version.
func (db *DB) UpdateJobWithVersion(ctx context.Context, job *models.Job) error {
	query := `UPDATE jobs SET staff_id = ?, status = ?, scheduled_start = ?, scheduled_end = ?, notes = ?,
              version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		job.StaffID,
		job.Status,
		formatTime(job.ScheduledStart),
		formatTime(job.ScheduledEnd),
		job.Notes,
		now,
		job.ID,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.versionError(ctx, "jobs", job.ID)
	}
	job.Version++
	job.UpdatedAt = now
	return nil
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var bookingID, staffID sql.NullInt64
	var start, end string
	err := row.Scan(
		&j.ID, &j.PropertyID, &bookingID, &j.Type, &j.Title, &staffID, &j.Status,
		&start, &end, &j.Notes, &j.CreatedAt, &j.UpdatedAt, &j.Version,
	)
	if err != nil {
		return nil, err
	}
	if bookingID.Valid {
		j.BookingID = &bookingID.Int64
	}
	if staffID.Valid {
		j.StaffID = &staffID.Int64
	}
	if j.ScheduledStart, err = time.Parse(models.TimeLayout, start); err != nil {
		return nil, fmt.Errorf("failed to parse scheduled_start %s: %w", start, err)
	}
	if j.ScheduledEnd, err = time.Parse(models.TimeLayout, end); err != nil {
		return nil, fmt.Errorf("failed to parse scheduled_end %s: %w", end, err)
	}
	return &j, nil
}
