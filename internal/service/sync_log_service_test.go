package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"villaops/internal/database"
	"villaops/internal/events"
	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSyncLogDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "synclog.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSyncLogService_Record(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("EnqueuesAppend", func(t *testing.T) {
		worker := new(mockWorker)
		worker.On("EnqueueTask", mock.Anything, models.TaskAppendEvent, int64(7), mock.AnythingOfType("*models.SyncEvent")).Return(nil).Once()
		svc := NewSyncLogService(newSyncLogDB(t), worker, &logger)

		e, err := svc.Record(ctx, events.EventBookingImported, "booking", 7, models.SourceAirbnb, map[string]string{"ref": "HM1"})
		require.NoError(t, err)
		assert.NotZero(t, e.ID)
		assert.JSONEq(t, `{"ref":"HM1"}`, e.Payload)
		worker.AssertExpectations(t)

		queued := worker.Calls[0].Arguments.Get(3).(*models.SyncEvent)
		assert.Equal(t, e.ID, queued.ID)
	})

	t.Run("EnqueueFailureIsLogged", func(t *testing.T) {
		worker := new(mockWorker)
		worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue full"))
		db := newSyncLogDB(t)
		svc := NewSyncLogService(db, worker, &logger)

		e, err := svc.Record(ctx, events.EventJobCreated, "job", 3, "", nil)
		require.NoError(t, err)
		assert.Empty(t, e.Payload)

		stored, err := db.ListSyncEvents(ctx, models.SyncEventFilter{})
		require.NoError(t, err)
		assert.Len(t, stored, 1, "the event stays stored when the mirror is unavailable")
	})

	t.Run("BadPayload", func(t *testing.T) {
		worker := new(mockWorker)
		svc := NewSyncLogService(newSyncLogDB(t), worker, &logger)

		_, err := svc.Record(ctx, events.EventAIDecision, "booking", 1, "", make(chan int))
		assert.Error(t, err)
		worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("StoreFailureIsSwallowed", func(t *testing.T) {
		worker := new(mockWorker)
		db := newSyncLogDB(t)
		svc := NewSyncLogService(db, worker, &logger)
		require.NoError(t, db.Close())

		_, err := svc.Record(ctx, events.EventBookingCreated, "booking", 1, "", nil)
		assert.Error(t, err)
		assert.NotPanics(t, func() {
			svc.record(ctx, events.EventBookingCreated, "booking", 1, "", nil)
		})
		worker.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		var none *SyncLogService
		assert.NotPanics(t, func() {
			none.record(ctx, events.EventBookingCreated, "booking", 1, "", nil)
		})
	})
}

func TestSyncLogService_List(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	svc := NewSyncLogService(newSyncLogDB(t), nil, &logger)

	record := func(eventType, entityType string, id int64) {
		_, err := svc.Record(ctx, eventType, entityType, id, "", nil)
		require.NoError(t, err)
	}
	record(events.EventBookingCreated, "booking", 1)
	record(events.EventBookingApproved, "booking", 1)
	record(events.EventBookingCreated, "booking", 2)
	record(events.EventJobCreated, "job", 1)

	tests := []struct {
		name   string
		filter models.SyncEventFilter
		want   []string
	}{
		{"All", models.SyncEventFilter{}, []string{events.EventJobCreated, events.EventBookingCreated, events.EventBookingApproved, events.EventBookingCreated}},
		{"EntityType", models.SyncEventFilter{EntityType: "job"}, []string{events.EventJobCreated}},
		{"Entity", models.SyncEventFilter{EntityType: "booking", EntityID: 1}, []string{events.EventBookingApproved, events.EventBookingCreated}},
		{"Type", models.SyncEventFilter{Type: events.EventBookingCreated}, []string{events.EventBookingCreated, events.EventBookingCreated}},
		{"Limit", models.SyncEventFilter{Limit: 2}, []string{events.EventJobCreated, events.EventBookingCreated}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(list))
			for _, e := range list {
				got = append(got, e.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
