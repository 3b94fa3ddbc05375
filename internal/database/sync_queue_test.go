package database

import (
	"context"
	"testing"
	"time"

	"villaops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:  models.TaskUpsertBooking,
		BookingID: 100,
		Payload:   `{"test": true}`,
		Status:    models.SyncStatusPending,
	}

	// Create
	err := db.CreateSyncTask(ctx, task)
	require.NoError(t, err)

	// Get Pending
	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].BookingID)

	// Update Status
	err = db.UpdateSyncTaskStatus(ctx, tasks[0].ID, models.SyncStatusCompleted, "", nil)
	require.NoError(t, err)

	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	assert.Len(t, tasks, 0)

	// Failed tasks
	errMsg := "some error"
	err1 := db.CreateSyncTask(ctx, &models.SyncTask{TaskType: "test", BookingID: 101, Status: models.SyncStatusFailed, LastError: &errMsg})
	require.NoError(t, err1)
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	// Retry logic
	task2 := &models.SyncTask{TaskType: "retry_test", BookingID: 102, Status: "pending"}
	err2 := db.CreateSyncTask(ctx, task2)
	require.NoError(t, err2)

	nextRetry := time.Now().Add(time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &nextRetry)
	require.NoError(t, err)

	// Should not be returned by GetPendingSyncTasks because nextRetry is in the future
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	for _, task := range tasks {
		if task.ID == task2.ID {
			assert.Fail(t, "task with future retry should not be pending")
		}
	}

	// Update to past retry
	pastRetry := time.Now().Add(-time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &pastRetry)
	require.NoError(t, err)
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	found := false
	for _, task := range tasks {
		if task.ID == task2.ID {
			found = true
			assert.Equal(t, 2, task.RetryCount)
		}
	}
	assert.True(t, found)
}

func TestCountSyncTasksByStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	for _, status := range []string{models.SyncStatusPending, models.SyncStatusPending, models.SyncStatusFailed} {
		require.NoError(t, db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskUpdateStatus, BookingID: 1, Status: status}))
	}
	require.NoError(t, db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskDeleteBooking, BookingID: 2}))

	counts, err := db.CountSyncTasksByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.SyncStatusPending])
	assert.Equal(t, 1, counts[models.SyncStatusFailed])
	assert.Zero(t, counts[models.SyncStatusCompleted])
}

func TestClaimSyncTask(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	task := &models.SyncTask{TaskType: models.TaskAppendEvent, BookingID: 1}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	ok, err := db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a processing task cannot be claimed twice")

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := db.RequeueProcessingSyncTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	next := time.Now().Add(-time.Second)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, "boom", &next))
	ok, err = db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok, "retrying tasks are claimable")

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil))
	ok, err = db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.ClaimSyncTask(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}
