package calendar

import (
	"context"

	"villaops/internal/conflict"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/metrics"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// LiveService is the real-time calendar: it follows booking and job changes,
// records conflicts they cause and hands subscribers mapped events.
type LiveService struct {
	repo      domain.Repository
	sync      *events.SyncService
	publisher domain.ChangePublisher
	logger    *zerolog.Logger
}

func NewLiveService(repo domain.Repository, sync *events.SyncService, logger *zerolog.Logger) *LiveService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LiveService{repo: repo, sync: sync, publisher: sync, logger: logger}
}

// Subscribe delivers calendar events matching q until the returned function
// is called or ctx ends. Conflict detection runs before delivery so the
// event already carries its conflict flag. Changes relayed from other
// instances are delivered as published: their records live in another
// database, so they are never checked against this one.
func (l *LiveService) Subscribe(ctx context.Context, q Query, fn func(events.Op, models.CalendarEvent)) func() {
	filter := events.Filter{PropertyID: q.PropertyID}

	stopBookings := l.sync.SubscribeBookings(filter, func(c events.Change, b *models.Booking) {
		if c.Op != events.OpRemoved && l.sync.Local(c) {
			b.Conflict = l.DetectBooking(ctx, b)
		}
		ev := FromBooking(b)
		if q.Match(ev) {
			fn(c.Op, ev)
		}
	})

	stopJobs := l.sync.SubscribeJobs(filter, func(c events.Change, j *models.Job) {
		busy := false
		if c.Op != events.OpRemoved && l.sync.Local(c) {
			busy = l.DetectJob(ctx, j)
		}
		ev := FromJob(j, "", "")
		if busy {
			MarkConflict(&ev)
		}
		if q.Match(ev) {
			fn(c.Op, ev)
		}
	})

	stop := func() {
		stopBookings()
		stopJobs()
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop
}

// DetectBooking stores conflicts between b and overlapping active stays and
// sets the conflict flag on both sides. For inactive bookings it resolves
// the conflicts b was part of. It returns b's resulting flag.
func (l *LiveService) DetectBooking(ctx context.Context, b *models.Booking) bool {
	log := l.logger.With().Int64("booking_id", b.ID).Logger()

	if !b.IsActive() {
		l.releaseBooking(ctx, b, &log)
		return false
	}

	overlapping, err := l.repo.OverlappingBookings(ctx, b.PropertyID, b.CheckIn, b.CheckOut, b.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load overlapping bookings")
		return b.Conflict
	}
	found := conflict.FindBookingConflicts(b, overlapping)
	if len(found) == 0 {
		return b.Conflict
	}

	for i := range found {
		c := found[i]
		if err := l.repo.UpsertConflict(ctx, &c); err != nil {
			log.Error().Err(err).Msg("failed to store booking conflict")
			continue
		}
		other := c.FirstID
		if other == b.ID {
			other = c.SecondID
		}
		if err := l.repo.SetBookingConflict(ctx, other, true); err != nil {
			log.Error().Err(err).Int64("other_id", other).Msg("failed to flag booking")
		}
		l.publisher.PublishConflict(events.OpAdded, &c)
	}
	if !b.Conflict {
		if err := l.repo.SetBookingConflict(ctx, b.ID, true); err != nil {
			log.Error().Err(err).Msg("failed to flag booking")
		}
	}
	metrics.AddConflicts(models.ConflictKindBooking, len(found))
	log.Warn().Int("conflicts", len(found)).Msg("booking overlaps existing stays")
	return true
}

// RedetectBooking drops the conflicts recorded for b's previous stay and
// checks its current one. Used after the dates of a booking change.
func (l *LiveService) RedetectBooking(ctx context.Context, b *models.Booking) bool {
	log := l.logger.With().Int64("booking_id", b.ID).Logger()
	l.releaseBooking(ctx, b, &log)
	b.Conflict = false
	return l.DetectBooking(ctx, b)
}

func (l *LiveService) releaseBooking(ctx context.Context, b *models.Booking, log *zerolog.Logger) {
	others, err := l.repo.ResolveConflictsFor(ctx, models.ConflictKindBooking, b.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve booking conflicts")
		return
	}
	if b.Conflict {
		if err := l.repo.SetBookingConflict(ctx, b.ID, false); err != nil {
			log.Error().Err(err).Msg("failed to clear booking flag")
		}
	}
	l.clearSettled(ctx, others, log)
}

// clearSettled drops the conflict flag of bookings left without open conflicts.
func (l *LiveService) clearSettled(ctx context.Context, ids []int64, log *zerolog.Logger) {
	for _, id := range ids {
		open, err := l.repo.HasOpenConflicts(ctx, models.ConflictKindBooking, id)
		if err != nil {
			log.Error().Err(err).Int64("other_id", id).Msg("failed to check conflicts")
			continue
		}
		if open {
			continue
		}
		if err := l.repo.SetBookingConflict(ctx, id, false); err != nil {
			log.Error().Err(err).Int64("other_id", id).Msg("failed to clear booking flag")
		}
	}
}

// ResolveConflict closes a conflict an operator has dealt with. Bookings
// left without open conflicts lose their flag. Detection reopens the
// conflict if the overlap is still there on the next change.
func (l *LiveService) ResolveConflict(ctx context.Context, id int64) (*models.Conflict, error) {
	if err := l.repo.ResolveConflict(ctx, id); err != nil {
		return nil, err
	}
	c, err := l.repo.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	log := l.logger.With().Int64("conflict_id", id).Str("kind", c.Kind).Logger()
	if c.Kind == models.ConflictKindBooking {
		l.clearSettled(ctx, []int64{c.FirstID, c.SecondID}, &log)
	}
	l.publisher.PublishConflict(events.OpModified, c)
	log.Info().Msg("conflict resolved")
	return c, nil
}

// DetectJob stores staff double-booking conflicts for an assigned job and
// reports whether any exist.
func (l *LiveService) DetectJob(ctx context.Context, j *models.Job) bool {
	log := l.logger.With().Int64("job_id", j.ID).Logger()

	// reassignment or rescheduling may end earlier conflicts; live ones are reopened below
	if _, err := l.repo.ResolveConflictsFor(ctx, models.ConflictKindStaff, j.ID); err != nil {
		log.Error().Err(err).Msg("failed to resolve staff conflicts")
	}
	if !j.IsActive() || j.StaffID == nil {
		return false
	}

	jobs, err := l.repo.StaffJobsInRange(ctx, *j.StaffID, j.ScheduledStart, j.ScheduledEnd, j.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load staff jobs")
		return false
	}
	found := conflict.FindStaffConflicts(j, jobs)
	for i := range found {
		c := found[i]
		if err := l.repo.UpsertConflict(ctx, &c); err != nil {
			log.Error().Err(err).Msg("failed to store staff conflict")
			continue
		}
		l.publisher.PublishConflict(events.OpAdded, &c)
	}
	if len(found) > 0 {
		metrics.AddConflicts(models.ConflictKindStaff, len(found))
		log.Warn().Int("conflicts", len(found)).Int64("staff_id", *j.StaffID).Msg("staff member double-booked")
	}
	return len(found) > 0
}
