package service

import (
	"context"
	"encoding/json"
	"fmt"

	"villaops/internal/domain"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// SyncLogService writes the cross-platform change log and mirrors it to the
// spreadsheet queue.
type SyncLogService struct {
	repo   domain.Repository
	worker domain.SyncWorker
	logger *zerolog.Logger
}

func NewSyncLogService(repo domain.Repository, worker domain.SyncWorker, logger *zerolog.Logger) *SyncLogService {
	return &SyncLogService{repo: repo, worker: worker, logger: orNop(logger)}
}

// Record stores one sync event. payload is serialized to JSON.
func (s *SyncLogService) Record(ctx context.Context, eventType, entityType string, entityID int64, source string, payload interface{}) (*models.SyncEvent, error) {
	e := &models.SyncEvent{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     source,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal sync payload: %w", err)
		}
		e.Payload = string(raw)
	}
	if err := s.repo.CreateSyncEvent(ctx, e); err != nil {
		return nil, err
	}

	if s.worker != nil {
		if err := s.worker.EnqueueTask(ctx, models.TaskAppendEvent, entityID, e); err != nil {
			s.logger.Error().Err(err).Str("event_type", eventType).Msg("sheets enqueue error")
		}
	}
	return e, nil
}

// record is Record for callers that only log failures.
func (s *SyncLogService) record(ctx context.Context, eventType, entityType string, entityID int64, source string, payload interface{}) {
	if s == nil {
		return
	}
	if _, err := s.Record(ctx, eventType, entityType, entityID, source, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("entity_id", entityID).Msg("sync log error")
	}
}

func (s *SyncLogService) List(ctx context.Context, f models.SyncEventFilter) ([]*models.SyncEvent, error) {
	return s.repo.ListSyncEvents(ctx, f)
}
