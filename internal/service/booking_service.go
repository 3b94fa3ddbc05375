package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/metrics"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// ConflictDetector flags an imported booking against stored stays.
// RedetectBooking first drops the conflicts of the booking's previous stay.
type ConflictDetector interface {
	DetectBooking(ctx context.Context, b *models.Booking) bool
	RedetectBooking(ctx context.Context, b *models.Booking) bool
}

type BookingService struct {
	repo      domain.Repository
	publisher domain.ChangePublisher
	worker    domain.SyncWorker
	syncLog   *SyncLogService
	jobs      *JobService
	detector  ConflictDetector
	cfg       config.BookingConfig
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	publisher domain.ChangePublisher,
	worker domain.SyncWorker,
	syncLog *SyncLogService,
	jobs *JobService,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = 730
	}
	if cfg.MaxNights <= 0 {
		cfg.MaxNights = 90
	}
	return &BookingService{
		repo:      repo,
		publisher: publisher,
		worker:    worker,
		syncLog:   syncLog,
		jobs:      jobs,
		cfg:       cfg,
		logger:    orNop(logger),
		now:       time.Now,
	}
}

// SetConflictDetector enables synchronous flagging of imported bookings.
func (s *BookingService) SetConflictDetector(d ConflictDetector) {
	s.detector = d
}

// ValidateStay checks the dates of a stay against the booking window.
func (s *BookingService) ValidateStay(checkIn, checkOut time.Time) error {
	checkIn, checkOut = models.DateOnly(checkIn), models.DateOnly(checkOut)
	if checkIn.IsZero() || checkOut.IsZero() {
		return validationError("check_in and check_out are required")
	}
	if !checkIn.Before(checkOut) {
		return validationError("check_out must be after check_in")
	}
	today := models.DateOnly(s.now())
	if checkIn.Before(today) {
		return database.ErrPastDate
	}
	if checkIn.After(today.AddDate(0, 0, s.cfg.MaxAdvanceDays)) {
		return database.ErrDateTooFar
	}
	if nights := int(checkOut.Sub(checkIn).Hours() / 24); nights > s.cfg.MaxNights {
		return validationError("stay of %d nights exceeds the maximum of %d", nights, s.cfg.MaxNights)
	}
	return nil
}

func (s *BookingService) prepare(ctx context.Context, b *models.Booking) (*models.Property, error) {
	b.GuestName = strings.TrimSpace(b.GuestName)
	if b.GuestName == "" {
		return nil, validationError("guest_name is required")
	}
	if b.Guests <= 0 {
		b.Guests = 1
	}
	property, err := s.repo.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, err
	}
	if !property.IsActive {
		return nil, validationError("property %d is not bookable", b.PropertyID)
	}
	b.PropertyName = property.Name
	b.CheckIn = models.DateOnly(b.CheckIn)
	b.CheckOut = models.DateOnly(b.CheckOut)
	return property, nil
}

// Create stores a direct booking. Overlapping an active stay of the same
// property fails with ErrNotAvailable.
func (s *BookingService) Create(ctx context.Context, b *models.Booking) error {
	property, err := s.prepare(ctx, b)
	if err != nil {
		return err
	}
	if err := s.ValidateStay(b.CheckIn, b.CheckOut); err != nil {
		return err
	}
	if property.MaxGuests > 0 && b.Guests > property.MaxGuests {
		return validationError("%d guests exceed the capacity of %s (%d)", b.Guests, property.Name, property.MaxGuests)
	}

	b.Status = models.StatusPending
	if b.Source == "" {
		b.Source = models.SourceDirect
	}
	b.Conflict = false

	if err := s.repo.CreateBookingWithLock(ctx, b); err != nil {
		return err
	}
	metrics.IncBookingCreated(b.Source)
	s.logger.Info().Int64("booking_id", b.ID).Int64("property_id", b.PropertyID).Msg("booking created")

	s.afterChange(ctx, b, events.OpAdded, events.EventBookingCreated, models.TaskUpsertBooking)
	return nil
}

// Import stores a booking that already exists on an external platform. It
// is accepted even when it overlaps another stay; the overlap is flagged.
// Importing the same source and external_ref twice returns the stored
// booking with created=false.
func (s *BookingService) Import(ctx context.Context, b *models.Booking) (*models.Booking, bool, error) {
	if b.Source == "" || b.Source == models.SourceDirect {
		return nil, false, validationError("import requires an external source")
	}
	if b.ExternalRef != "" {
		existing, err := s.repo.GetBookingByExternalRef(ctx, b.Source, b.ExternalRef)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, false, err
		}
	}

	if _, err := s.prepare(ctx, b); err != nil {
		return nil, false, err
	}
	if !b.CheckIn.Before(b.CheckOut) {
		return nil, false, validationError("check_out must be after check_in")
	}
	switch b.Status {
	case "":
		b.Status = models.StatusPending
	case models.StatusPending, models.StatusApproved:
	default:
		return nil, false, validationError("imported booking cannot be %s", b.Status)
	}
	b.Conflict = false

	if err := s.repo.InsertBooking(ctx, b); err != nil {
		return nil, false, err
	}
	metrics.IncBookingCreated(b.Source)
	if s.detector != nil {
		b.Conflict = s.detector.DetectBooking(ctx, b)
	}
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("source", b.Source).
		Str("external_ref", b.ExternalRef).
		Bool("conflict", b.Conflict).
		Msg("booking imported")

	s.afterChange(ctx, b, events.OpAdded, events.EventBookingImported, models.TaskUpsertBooking)
	if b.Status == models.StatusApproved {
		s.scheduleCleaning(ctx, b)
	}
	return b, true, nil
}

// UpdateImported applies a changed stay from an external platform to the
// booking stored under the same source and external_ref. Unknown refs are
// imported. A differing status is applied through the usual transition
// after the stay fields.
func (s *BookingService) UpdateImported(ctx context.Context, b *models.Booking) (*models.Booking, bool, error) {
	if b.Source == "" || b.Source == models.SourceDirect || b.ExternalRef == "" {
		return nil, false, validationError("update requires an external source and external_ref")
	}
	existing, err := s.repo.GetBookingByExternalRef(ctx, b.Source, b.ExternalRef)
	if errors.Is(err, database.ErrNotFound) {
		return s.Import(ctx, b)
	}
	if err != nil {
		return nil, false, err
	}
	if b.PropertyID != 0 && b.PropertyID != existing.PropertyID {
		return nil, false, validationError("external_ref %s belongs to property %d", b.ExternalRef, existing.PropertyID)
	}

	// zero values keep the stored field
	next := *existing
	if !b.CheckIn.IsZero() {
		next.CheckIn = models.DateOnly(b.CheckIn)
	}
	if !b.CheckOut.IsZero() {
		next.CheckOut = models.DateOnly(b.CheckOut)
	}
	if b.Guests > 0 {
		next.Guests = b.Guests
	}
	if b.TotalAmount != 0 {
		next.TotalAmount = b.TotalAmount
	}
	if b.GuestName != "" {
		next.GuestName = b.GuestName
	}
	if b.GuestEmail != "" {
		next.GuestEmail = b.GuestEmail
	}
	if b.GuestPhone != "" {
		next.GuestPhone = b.GuestPhone
	}
	if b.Notes != "" {
		next.Notes = b.Notes
	}
	if !next.CheckIn.Before(next.CheckOut) {
		return nil, false, validationError("check_out must be after check_in")
	}
	property, err := s.repo.GetProperty(ctx, next.PropertyID)
	if err != nil {
		return nil, false, err
	}
	if property.MaxGuests > 0 && next.Guests > property.MaxGuests {
		return nil, false, validationError("%d guests exceed the capacity of %s (%d)", next.Guests, property.Name, property.MaxGuests)
	}

	updated := existing
	if stayChanged(existing, &next) {
		if err := s.repo.UpdateBookingStayWithVersion(ctx, &next); err != nil {
			return nil, false, err
		}
		updated = &next
		if s.detector != nil {
			updated.Conflict = s.detector.RedetectBooking(ctx, updated)
		}
		s.logger.Info().
			Int64("booking_id", updated.ID).
			Str("source", updated.Source).
			Str("external_ref", updated.ExternalRef).
			Bool("conflict", updated.Conflict).
			Msg("booking updated from source")
		s.afterChange(ctx, updated, events.OpModified, events.EventBookingUpdated, models.TaskUpsertBooking)
	}

	if b.Status == "" || b.Status == updated.Status {
		return updated, false, nil
	}
	transitions := map[string]func(context.Context, int64, int64) (*models.Booking, error){
		models.StatusApproved:  s.Approve,
		models.StatusRejected:  s.Reject,
		models.StatusCancelled: s.Cancel,
		models.StatusCompleted: s.Complete,
	}
	fn, ok := transitions[b.Status]
	if !ok {
		return nil, false, validationError("unsupported status %s", b.Status)
	}
	updated, err = fn(ctx, updated.ID, updated.Version)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

func stayChanged(a, b *models.Booking) bool {
	return !a.CheckIn.Equal(b.CheckIn) ||
		!a.CheckOut.Equal(b.CheckOut) ||
		a.Guests != b.Guests ||
		a.TotalAmount != b.TotalAmount ||
		a.GuestName != b.GuestName ||
		a.GuestEmail != b.GuestEmail ||
		a.GuestPhone != b.GuestPhone ||
		a.Notes != b.Notes
}

// Approve confirms a pending booking and schedules its turnover cleaning.
// The check for an approved overlap and the status update run in one
// transaction. Version 0 skips the optimistic check.
func (s *BookingService) Approve(ctx context.Context, id, version int64) (*models.Booking, error) {
	b, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(bookingTransitions, "booking", b.Status, models.StatusApproved); err != nil {
		return nil, err
	}
	if err := s.repo.ApproveBookingWithLock(ctx, b.ID, b.Version); err != nil {
		return nil, err
	}
	b, err = s.changed(ctx, b, models.StatusApproved, events.EventBookingApproved)
	if err != nil {
		return nil, err
	}
	s.scheduleCleaning(ctx, b)
	return b, nil
}

// Reject declines a pending booking and drops its row from the sheet mirror.
func (s *BookingService) Reject(ctx context.Context, id, version int64) (*models.Booking, error) {
	b, err := s.transition(ctx, id, version, models.StatusRejected, events.EventBookingRejected)
	if err != nil {
		return nil, err
	}
	s.enqueue(ctx, models.TaskDeleteBooking, b.ID, nil)
	return b, nil
}

// Cancel withdraws a booking and cancels its open jobs.
func (s *BookingService) Cancel(ctx context.Context, id, version int64) (*models.Booking, error) {
	b, err := s.transition(ctx, id, version, models.StatusCancelled, events.EventBookingCancelled)
	if err != nil {
		return nil, err
	}
	if s.jobs != nil {
		if _, err := s.jobs.CancelForBooking(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to cancel booking jobs")
		}
	}
	return b, nil
}

func (s *BookingService) Complete(ctx context.Context, id, version int64) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusCompleted, events.EventBookingCompleted)
}

func (s *BookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) List(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	if f.Limit <= 0 {
		f.Limit = models.DefaultListLimit
	}
	return s.repo.ListBookings(ctx, f)
}

// Availability returns per-night availability of a property.
func (s *BookingService) Availability(ctx context.Context, propertyID int64, start time.Time, days int) ([]*models.Availability, error) {
	if days <= 0 || days > 366 {
		return nil, validationError("days must be between 1 and 366")
	}
	if _, err := s.repo.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.repo.GetAvailabilityForPeriod(ctx, propertyID, start, days)
}

func (s *BookingService) transition(ctx context.Context, id, version int64, to, eventType string) (*models.Booking, error) {
	b, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(bookingTransitions, "booking", b.Status, to); err != nil {
		return nil, err
	}
	return s.apply(ctx, b, to, eventType)
}

func (s *BookingService) apply(ctx context.Context, b *models.Booking, to, eventType string) (*models.Booking, error) {
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, to); err != nil {
		return nil, err
	}
	return s.changed(ctx, b, to, eventType)
}

// changed reloads b after a status update and announces it.
func (s *BookingService) changed(ctx context.Context, b *models.Booking, to, eventType string) (*models.Booking, error) {
	updated, err := s.repo.GetBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", b.ID).Str("from", b.Status).Str("to", to).Msg("booking status changed")

	s.afterChange(ctx, updated, events.OpModified, eventType, models.TaskUpdateStatus)
	return updated, nil
}

func (s *BookingService) load(ctx context.Context, id, version int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != b.Version {
		return nil, database.ErrConcurrentModification
	}
	return b, nil
}

func (s *BookingService) afterChange(ctx context.Context, b *models.Booking, op events.Op, eventType, taskType string) {
	if s.publisher != nil {
		s.publisher.PublishBooking(op, b)
	}
	s.syncLog.record(ctx, eventType, "booking", b.ID, b.Source, b)

	var payload interface{} = b
	if taskType == models.TaskUpdateStatus {
		payload = map[string]string{"status": b.Status}
	}
	s.enqueue(ctx, taskType, b.ID, payload)
}

func (s *BookingService) enqueue(ctx context.Context, taskType string, bookingID int64, payload interface{}) {
	if s.worker == nil {
		return
	}
	if err := s.worker.EnqueueTask(ctx, taskType, bookingID, payload); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *BookingService) scheduleCleaning(ctx context.Context, b *models.Booking) {
	if !s.cfg.AutoCleaningJobs || s.jobs == nil {
		return
	}
	if _, err := s.jobs.ScheduleCleaning(ctx, b); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to schedule cleaning")
	}
}
