package service

import (
	"context"
	"strings"

	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

type StaffService struct {
	repo      domain.Repository
	publisher domain.ChangePublisher
	logger    *zerolog.Logger
}

func NewStaffService(repo domain.Repository, publisher domain.ChangePublisher, logger *zerolog.Logger) *StaffService {
	return &StaffService{repo: repo, publisher: publisher, logger: orNop(logger)}
}

func validateStaff(p *models.StaffProfile) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return validationError("staff name is required")
	}
	if !oneOf(p.Role, models.RoleCleaner, models.RoleMaintenance, models.RoleConcierge, models.RoleManager) {
		return validationError("unknown staff role %q", p.Role)
	}
	return nil
}

// Create stores a new active staff member.
func (s *StaffService) Create(ctx context.Context, p *models.StaffProfile) error {
	if err := validateStaff(p); err != nil {
		return err
	}
	p.IsActive = true
	if err := s.repo.CreateStaff(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Int64("staff_id", p.ID).Str("role", p.Role).Msg("staff member created")
	s.publish(events.OpAdded, p)
	return nil
}

func (s *StaffService) Update(ctx context.Context, p *models.StaffProfile) error {
	if err := validateStaff(p); err != nil {
		return err
	}
	if err := s.repo.UpdateStaff(ctx, p); err != nil {
		return err
	}
	s.publish(events.OpModified, p)
	return nil
}

// Deactivate keeps the profile for history but removes it from assignment.
func (s *StaffService) Deactivate(ctx context.Context, id int64) (*models.StaffProfile, error) {
	p, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	if err := s.repo.UpdateStaff(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("staff_id", id).Msg("staff member deactivated")
	s.publish(events.OpModified, p)
	return p, nil
}

func (s *StaffService) Get(ctx context.Context, id int64) (*models.StaffProfile, error) {
	return s.repo.GetStaff(ctx, id)
}

func (s *StaffService) List(ctx context.Context, role string, activeOnly bool) ([]*models.StaffProfile, error) {
	return s.repo.ListStaff(ctx, role, activeOnly)
}

func (s *StaffService) publish(op events.Op, p *models.StaffProfile) {
	if s.publisher != nil {
		s.publisher.PublishStaff(op, p)
	}
}
