package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

type JobService struct {
	repo          domain.Repository
	publisher     domain.ChangePublisher
	notifications *NotificationService
	syncLog       *SyncLogService
	cfg           config.BookingConfig
	logger        *zerolog.Logger
}

func NewJobService(
	repo domain.Repository,
	publisher domain.ChangePublisher,
	notifications *NotificationService,
	syncLog *SyncLogService,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *JobService {
	if cfg.CleaningDurationHours <= 0 {
		cfg.CleaningDurationHours = 4
	}
	return &JobService{
		repo:          repo,
		publisher:     publisher,
		notifications: notifications,
		syncLog:       syncLog,
		cfg:           cfg,
		logger:        orNop(logger),
	}
}

var jobTitles = map[string]string{
	models.JobTypeCleaning:    "Cleaning",
	models.JobTypeMaintenance: "Maintenance",
	models.JobTypeInspection:  "Inspection",
	models.JobTypeCheckIn:     "Guest check-in",
	models.JobTypeCheckOut:    "Guest check-out",
}

// Create stores a job. When StaffID is set the job is assigned right away
// under the same checks as Assign.
func (s *JobService) Create(ctx context.Context, j *models.Job) error {
	if _, ok := jobTitles[j.Type]; !ok {
		return validationError("unknown job type %q", j.Type)
	}
	if strings.TrimSpace(j.Title) == "" {
		j.Title = jobTitles[j.Type]
	}
	if !j.ScheduledStart.Before(j.ScheduledEnd) {
		return validationError("job must end after it starts")
	}
	if _, err := s.repo.GetProperty(ctx, j.PropertyID); err != nil {
		return err
	}

	j.Status = models.JobStatusPending
	if j.StaffID != nil {
		if err := s.checkAvailable(ctx, *j.StaffID, j); err != nil {
			return err
		}
		j.Status = models.JobStatusAssigned
	}

	if err := s.repo.CreateJob(ctx, j); err != nil {
		return err
	}
	s.logger.Info().Int64("job_id", j.ID).Str("type", j.Type).Int64("property_id", j.PropertyID).Msg("job created")

	s.publish(events.OpAdded, j)
	s.syncLog.record(ctx, events.EventJobCreated, "job", j.ID, models.SourceDirect, j)
	if j.StaffID != nil {
		s.notifyAssigned(ctx, j)
	}
	return nil
}

// ScheduleCleaning creates the turnover job for an approved stay on its
// check-out day. An existing active cleaning job for the booking is returned
// instead of creating a second one.
func (s *JobService) ScheduleCleaning(ctx context.Context, b *models.Booking) (*models.Job, error) {
	existing, err := s.repo.ListJobs(ctx, models.JobFilter{BookingID: b.ID})
	if err != nil {
		return nil, err
	}
	for _, j := range existing {
		if j.Type == models.JobTypeCleaning && j.IsActive() {
			return j, nil
		}
	}

	start := models.DateOnly(b.CheckOut).Add(time.Duration(s.cfg.CleaningStartHour) * time.Hour)
	bookingID := b.ID
	j := &models.Job{
		PropertyID:     b.PropertyID,
		BookingID:      &bookingID,
		Type:           models.JobTypeCleaning,
		Title:          fmt.Sprintf("Cleaning after %s", b.GuestName),
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Duration(s.cfg.CleaningDurationHours) * time.Hour),
	}
	if err := s.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Assign gives the job to staffID. The staff member must be active and free
// for the whole job window.
func (s *JobService) Assign(ctx context.Context, jobID, staffID, version int64) (*models.Job, error) {
	j, err := s.load(ctx, jobID, version)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(jobTransitions, "job", j.Status, models.JobStatusAssigned); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, staffID, j); err != nil {
		return nil, err
	}

	j.StaffID = &staffID
	j.Status = models.JobStatusAssigned
	if err := s.repo.UpdateJobWithVersion(ctx, j); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("job_id", j.ID).Int64("staff_id", staffID).Msg("job assigned")

	s.publish(events.OpModified, j)
	s.syncLog.record(ctx, events.EventJobAssigned, "job", j.ID, models.SourceDirect, j)
	s.notifyAssigned(ctx, j)
	return j, nil
}

func (s *JobService) Start(ctx context.Context, jobID, version int64) (*models.Job, error) {
	return s.transition(ctx, jobID, version, models.JobStatusInProgress)
}

func (s *JobService) Complete(ctx context.Context, jobID, version int64) (*models.Job, error) {
	return s.transition(ctx, jobID, version, models.JobStatusCompleted)
}

func (s *JobService) Cancel(ctx context.Context, jobID, version int64) (*models.Job, error) {
	j, err := s.transition(ctx, jobID, version, models.JobStatusCancelled)
	if err != nil {
		return nil, err
	}
	if j.StaffID != nil && s.notifications != nil {
		body := fmt.Sprintf("%s on %s was cancelled", j.Title, j.ScheduledStart.Format("2006-01-02 15:04"))
		if _, err := s.notifications.Notify(ctx, *j.StaffID, "Job cancelled", body); err != nil {
			s.logger.Error().Err(err).Int64("job_id", j.ID).Msg("cancel notification error")
		}
	}
	return j, nil
}

// CancelForBooking cancels the open jobs of a booking that is no longer taking place.
func (s *JobService) CancelForBooking(ctx context.Context, bookingID int64) (int, error) {
	jobs, err := s.repo.ListJobs(ctx, models.JobFilter{BookingID: bookingID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if j.Status != models.JobStatusPending && j.Status != models.JobStatusAssigned {
			continue
		}
		if _, err := s.Cancel(ctx, j.ID, j.Version); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *JobService) Get(ctx context.Context, id int64) (*models.Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *JobService) List(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	return s.repo.ListJobs(ctx, f)
}

func (s *JobService) transition(ctx context.Context, jobID, version int64, to string) (*models.Job, error) {
	j, err := s.load(ctx, jobID, version)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(jobTransitions, "job", j.Status, to); err != nil {
		return nil, err
	}
	if to == models.JobStatusInProgress && j.StaffID == nil {
		return nil, validationError("job %d has no assigned staff", j.ID)
	}

	j.Status = to
	if err := s.repo.UpdateJobWithVersion(ctx, j); err != nil {
		return nil, err
	}
	s.publish(events.OpModified, j)
	s.syncLog.record(ctx, events.EventJobStatus, "job", j.ID, models.SourceDirect, map[string]interface{}{
		"status": to,
		"job":    j,
	})
	return j, nil
}

// load fetches the job and checks the caller's version. Version 0 skips the check.
func (s *JobService) load(ctx context.Context, jobID, version int64) (*models.Job, error) {
	j, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != j.Version {
		return nil, database.ErrConcurrentModification
	}
	return j, nil
}

func (s *JobService) checkAvailable(ctx context.Context, staffID int64, j *models.Job) error {
	staff, err := s.repo.GetStaff(ctx, staffID)
	if err != nil {
		return err
	}
	if !staff.IsActive {
		return validationError("staff member %d is inactive", staffID)
	}
	busy, err := s.repo.StaffJobsInRange(ctx, staffID, j.ScheduledStart, j.ScheduledEnd, j.ID)
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return fmt.Errorf("%w: staff %d has job %d in that window", database.ErrStaffBusy, staffID, busy[0].ID)
	}
	return nil
}

func (s *JobService) notifyAssigned(ctx context.Context, j *models.Job) {
	if s.notifications == nil || j.StaffID == nil {
		return
	}
	body := fmt.Sprintf("%s from %s to %s", j.Title,
		j.ScheduledStart.Format("2006-01-02 15:04"), j.ScheduledEnd.Format("15:04"))
	if _, err := s.notifications.Notify(ctx, *j.StaffID, "New job assigned", body); err != nil {
		s.logger.Error().Err(err).Int64("job_id", j.ID).Msg("assignment notification error")
	}
}

func (s *JobService) publish(op events.Op, j *models.Job) {
	if s.publisher != nil {
		s.publisher.PublishJob(op, j)
	}
}
