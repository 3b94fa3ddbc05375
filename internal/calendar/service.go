package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"villaops/internal/conflict"
	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

const (
	cachePrefix   = "calendar:"
	defaultWindow = 30 * 24 * time.Hour
)

// Service builds calendar views from stored bookings and jobs.
type Service struct {
	repo   domain.Repository
	cache  domain.CacheRepository
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewService(repo domain.Repository, cache domain.CacheRepository, ttl time.Duration, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if ttl <= 0 {
		ttl = models.DefaultCacheTTL * time.Second
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Events returns the events of q sorted by start. Without a window the next
// 30 days from today are used.
func (s *Service) Events(ctx context.Context, q Query) ([]models.CalendarEvent, error) {
	if q.From.IsZero() && q.To.IsZero() {
		q.From = models.DateOnly(time.Now())
		q.To = q.From.Add(defaultWindow)
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, fmt.Errorf("%w: calendar window end must be after start", database.ErrValidation)
	}

	key := q.cacheKey()
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn().Err(err).Msg("calendar cache read failed")
		} else if ok {
			var cached []models.CalendarEvent
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	out, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.logger.Warn().Err(err).Msg("calendar cache write failed")
			}
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, q Query) ([]models.CalendarEvent, error) {
	out := []models.CalendarEvent{}

	if q.wants(models.EventKindBooking) {
		bookings, err := s.repo.ListBookings(ctx, models.BookingFilter{PropertyID: q.PropertyID, From: q.From, To: q.To})
		if err != nil {
			return nil, err
		}
		flagged := make(map[int64]bool)
		for _, c := range conflict.ScanBookings(bookings) {
			flagged[c.FirstID] = true
			flagged[c.SecondID] = true
		}
		for _, b := range bookings {
			ev := FromBooking(b)
			if flagged[b.ID] {
				MarkConflict(&ev)
			}
			out = append(out, ev)
		}
	}

	if q.wants(models.EventKindJob) {
		jobs, err := s.repo.ListJobs(ctx, models.JobFilter{PropertyID: q.PropertyID, StaffID: q.StaffID, From: q.From, To: q.To})
		if err != nil {
			return nil, err
		}
		names, err := s.staffNames(ctx)
		if err != nil {
			return nil, err
		}
		properties, err := s.propertyNames(ctx)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			var staffName string
			if j.StaffID != nil {
				staffName = names[*j.StaffID]
			}
			ev := FromJob(j, properties[j.PropertyID], staffName)
			if j.IsActive() && len(conflict.FindStaffConflicts(j, jobs)) > 0 {
				MarkConflict(&ev)
			}
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Service) staffNames(ctx context.Context) (map[int64]string, error) {
	staff, err := s.repo.ListStaff(ctx, "", false)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(staff))
	for _, p := range staff {
		names[p.ID] = p.Name
	}
	return names, nil
}

func (s *Service) propertyNames(ctx context.Context) (map[int64]string, error) {
	props, err := s.repo.ListProperties(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(props))
	for _, p := range props {
		names[p.ID] = p.Name
	}
	return names, nil
}

// Invalidate drops every cached view.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.logger.Warn().Err(err).Msg("calendar cache invalidation failed")
	}
}

// InvalidateOn drops cached views whenever a booking or job changes on feed.
func (s *Service) InvalidateOn(ctx context.Context, feed *events.Feed) func() {
	filter := events.Filter{Collections: []string{events.CollectionBookings, events.CollectionJobs, events.CollectionStaff}}
	return feed.Subscribe(filter, func(events.Change) {
		s.Invalidate(ctx)
	})
}
