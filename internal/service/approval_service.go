package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"villaops/internal/config"
	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/metrics"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// ApprovalService records automated booking decisions and routes the
// uncertain ones to a manager.
type ApprovalService struct {
	repo          domain.Repository
	bookings      *BookingService
	notifications *NotificationService
	syncLog       *SyncLogService
	cfg           config.ApprovalConfig
	logger        *zerolog.Logger
}

func NewApprovalService(
	repo domain.Repository,
	bookings *BookingService,
	notifications *NotificationService,
	syncLog *SyncLogService,
	cfg config.ApprovalConfig,
	logger *zerolog.Logger,
) *ApprovalService {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.8
	}
	return &ApprovalService{
		repo:          repo,
		bookings:      bookings,
		notifications: notifications,
		syncLog:       syncLog,
		cfg:           cfg,
		logger:        orNop(logger),
	}
}

// RecordDecision stores a decision for a pending booking. Decisions that
// trip an escalation rule leave the booking pending and notify managers;
// the others are applied to the booking right away.
func (s *ApprovalService) RecordDecision(ctx context.Context, e *models.AILogEntry) (*models.AILogEntry, error) {
	if !oneOf(e.Decision, models.DecisionApprove, models.DecisionReject, models.DecisionReview) {
		return nil, validationError("unknown decision %q", e.Decision)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return nil, validationError("confidence must be between 0 and 1")
	}
	b, err := s.repo.GetBooking(ctx, e.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: booking %d is %s", database.ErrInvalidTransition, b.ID, b.Status)
	}

	reasons, err := s.escalationReasons(ctx, e, b)
	if err != nil {
		return nil, err
	}

	if len(reasons) == 0 {
		if applyErr := s.apply(ctx, b, e.Decision == models.DecisionApprove); applyErr != nil {
			if !errors.Is(applyErr, database.ErrNotAvailable) {
				return nil, applyErr
			}
			reasons = append(reasons, "dates no longer available")
		} else {
			e.Resolution = e.Decision
		}
	}

	e.Escalated = len(reasons) > 0
	e.EscalationReason = strings.Join(reasons, "; ")
	if err := s.repo.CreateAILog(ctx, e); err != nil {
		return nil, err
	}
	s.syncLog.record(ctx, events.EventAIDecision, "booking", b.ID, e.Model, e)

	if e.Escalated {
		metrics.IncEscalation()
		s.logger.Info().
			Int64("booking_id", b.ID).
			Int64("log_id", e.ID).
			Str("reason", e.EscalationReason).
			Msg("decision escalated")
		s.notifyManagers(ctx, e, b)
	}
	return e, nil
}

func (s *ApprovalService) escalationReasons(ctx context.Context, e *models.AILogEntry, b *models.Booking) ([]string, error) {
	var reasons []string
	if e.Decision == models.DecisionReview {
		reasons = append(reasons, "review requested")
	}
	if e.Confidence < s.cfg.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below %.2f", e.Confidence, s.cfg.ConfidenceThreshold))
	}
	if s.cfg.EscalateConflicts {
		open := b.Conflict
		if !open {
			var err error
			open, err = s.repo.HasOpenConflicts(ctx, models.ConflictKindBooking, b.ID)
			if err != nil {
				return nil, err
			}
		}
		if open {
			reasons = append(reasons, "booking has conflicts")
		}
	}
	property, err := s.repo.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, err
	}
	if property.MaxGuests > 0 && b.Guests > property.MaxGuests {
		reasons = append(reasons, fmt.Sprintf("%d guests exceed capacity %d", b.Guests, property.MaxGuests))
	}
	return reasons, nil
}

// ResolveEscalation applies a manager's decision to an escalated entry.
func (s *ApprovalService) ResolveEscalation(ctx context.Context, logID, reviewerID int64, approve bool) (*models.AILogEntry, error) {
	reviewer, err := s.repo.GetStaff(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if reviewer.Role != models.RoleManager || !reviewer.IsActive {
		return nil, validationError("staff member %d cannot review decisions", reviewerID)
	}

	e, err := s.repo.GetAILog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !e.Escalated {
		return nil, validationError("decision %d was not escalated", logID)
	}
	if !e.Pending() {
		return nil, database.ErrAlreadyResolved
	}

	b, err := s.repo.GetBooking(ctx, e.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusPending {
		if err := s.apply(ctx, b, approve); err != nil {
			return nil, err
		}
	}

	resolution := models.DecisionReject
	if approve {
		resolution = models.DecisionApprove
	}
	if err := s.repo.ResolveAILog(ctx, logID, reviewerID, resolution); err != nil {
		return nil, err
	}
	resolved, err := s.repo.GetAILog(ctx, logID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("log_id", logID).Int64("reviewer_id", reviewerID).Str("resolution", resolution).Msg("escalation resolved")
	s.syncLog.record(ctx, events.EventAIResolved, "booking", b.ID, models.SourceDirect, resolved)
	return resolved, nil
}

func (s *ApprovalService) ListEscalations(ctx context.Context) ([]*models.AILogEntry, error) {
	return s.repo.ListAILogs(ctx, 0, true)
}

func (s *ApprovalService) ListDecisions(ctx context.Context, bookingID int64) ([]*models.AILogEntry, error) {
	return s.repo.ListAILogs(ctx, bookingID, false)
}

func (s *ApprovalService) apply(ctx context.Context, b *models.Booking, approve bool) error {
	var err error
	if approve {
		_, err = s.bookings.Approve(ctx, b.ID, b.Version)
	} else {
		_, err = s.bookings.Reject(ctx, b.ID, b.Version)
	}
	return err
}

func (s *ApprovalService) notifyManagers(ctx context.Context, e *models.AILogEntry, b *models.Booking) {
	if s.notifications == nil {
		return
	}
	title := fmt.Sprintf("Booking %d needs review", b.ID)
	body := fmt.Sprintf("%s, %s to %s at %s. Suggested: %s (%.0f%%). %s",
		b.GuestName,
		b.CheckIn.Format(models.DateLayout),
		b.CheckOut.Format(models.DateLayout),
		b.PropertyName,
		e.Decision,
		e.Confidence*100,
		e.EscalationReason,
	)
	if _, err := s.notifications.NotifyManagers(ctx, title, body); err != nil {
		s.logger.Warn().Err(err).Int64("log_id", e.ID).Msg("manager notification incomplete")
	}
}
