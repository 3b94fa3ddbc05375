package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"villaops/internal/database"
	"villaops/internal/domain"
	"villaops/internal/export"
	"villaops/internal/metrics"
	"villaops/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ScheduleWriter is implemented by spreadsheet clients that can render the
// occupancy grid.
type ScheduleWriter interface {
	WriteSchedule(ctx context.Context, g *export.Grid) error
}

// GridLoader builds the occupancy grid for a schedule sync.
type GridLoader func(ctx context.Context, start time.Time, days int) (*export.Grid, error)

type schedulePayload struct {
	Start string `json:"start"`
	Days  int    `json:"days"`
}

// SheetsWorker consumes sync_queue tasks and applies them to the spreadsheet.
// Tasks are persisted first, then handed over through an in-memory channel
// or a Redis list; the database poll picks up whatever those miss.
type SheetsWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	redis         *redis.Client
	grids         GridLoader
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker. Unset retry limits take the
// DefaultRetryPolicy values.
func NewSheetsWorker(
	db *database.DB,
	sheets domain.SheetsWriter,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *SheetsWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "villaops:sheets:queue",
		deadLetterKey: "villaops:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// SetGridLoader enables schedule sync tasks.
func (w *SheetsWorker) SetGridLoader(fn GridLoader) {
	w.grids = fn
}

// EnqueueTask persists a task and schedules it. payload is stored as JSON:
// a booking for upserts, {"status": ...} for status changes, a sync event
// for log appends.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if bookingID == 0 && taskType != models.TaskSyncSchedule && taskType != models.TaskAppendEvent {
		return errors.New("booking id is required")
	}

	raw := []byte("{}")
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}

	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(raw),
		Status:    models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("sheets_worker: in-memory queue full, task left to polling")
	}
	return nil
}

// EnqueueSyncSchedule asks for the occupancy grid of days nights from start
// to be rewritten.
func (w *SheetsWorker) EnqueueSyncSchedule(ctx context.Context, start time.Time, days int) error {
	return w.EnqueueTask(ctx, models.TaskSyncSchedule, 0, schedulePayload{
		Start: start.Format(models.DateLayout),
		Days:  days,
	})
}

// Start runs the main loop; it returns when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets_worker: started")
	defer w.logger.Info().Msg("sheets_worker: stopped")

	if n, err := w.db.RequeueProcessingSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: requeue interrupted tasks")
	} else if n > 0 {
		w.logger.Warn().Int64("tasks", n).Msg("sheets_worker: requeued interrupted tasks")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("sheets_worker: fetch pending")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("sheets_worker: redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask runs a task that one of the three delivery paths handed
// over. The same task can reach several paths, so it runs only after its
// row is claimed.
func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	log := w.logger.With().Int64("task_id", task.ID).Str("task_type", task.TaskType).Logger()

	claimed, err := w.db.ClaimSyncTask(ctx, task.ID)
	if err != nil {
		log.Error().Err(err).Msg("sheets_worker: claim task")
		return
	}
	if !claimed {
		log.Debug().Msg("sheets_worker: task already handled")
		return
	}

	if err := w.handleSheetTask(ctx, task); err != nil {
		var permanent *permanentError
		if errors.As(err, &permanent) {
			w.failTask(ctx, task, err)
			return
		}
		log.Warn().Err(err).Int("retry_count", task.RetryCount).Msg("sheets_worker: task failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("sheets_worker: mark completed")
	}
	metrics.IncSyncTask(models.SyncStatusCompleted)
}

// permanentError marks tasks that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...interface{}) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, task *models.SyncTask) error {
	if w.sheets == nil {
		return permanent("sheets client is not configured")
	}
	raw := []byte(task.Payload)

	switch task.TaskType {
	case models.TaskUpsertBooking:
		var b models.Booking
		if err := json.Unmarshal(raw, &b); err != nil {
			return permanent("decode booking: %w", err)
		}
		if b.ID == 0 {
			b.ID = task.BookingID
		}
		return w.sheets.UpsertBooking(ctx, &b)
	case models.TaskUpdateStatus:
		var p struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return permanent("decode status: %w", err)
		}
		if p.Status == "" {
			return permanent("status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, task.BookingID, p.Status)
	case models.TaskDeleteBooking:
		return w.sheets.DeleteBookingRow(ctx, task.BookingID)
	case models.TaskAppendEvent:
		var e models.SyncEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return permanent("decode sync event: %w", err)
		}
		return w.sheets.AppendSyncEvent(ctx, &e)
	case models.TaskSyncSchedule:
		return w.syncSchedule(ctx, raw)
	default:
		return permanent("unknown task type: %s", task.TaskType)
	}
}

func (w *SheetsWorker) syncSchedule(ctx context.Context, raw []byte) error {
	writer, ok := w.sheets.(ScheduleWriter)
	if !ok || w.grids == nil {
		return permanent("schedule sync is not configured")
	}
	var p schedulePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return permanent("decode schedule: %w", err)
	}
	start, err := time.Parse(models.DateLayout, p.Start)
	if err != nil {
		return permanent("decode schedule start: %w", err)
	}
	grid, err := w.grids(ctx, start, p.Days)
	if err != nil {
		return err
	}
	return writer.WriteSchedule(ctx, grid)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark retry")
	}
	metrics.IncSyncTask(models.SyncStatusRetry)
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("sheets_worker: task moved to dead letter")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark failed")
	}
	metrics.IncSyncTask(models.SyncStatusFailed)
	msg := cause.Error()
	task.Status = models.SyncStatusFailed
	task.LastError = &msg
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: deadletter push")
	}
}

// DeadLetters returns up to limit dead-lettered tasks, newest first.
// Without Redis the failed rows of sync_queue are the dead letter list.
func (w *SheetsWorker) DeadLetters(ctx context.Context, limit int64) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = 50
	}
	if w.redis == nil {
		tasks, err := w.db.GetFailedSyncTasks(ctx)
		if err != nil {
			return nil, err
		}
		if int64(len(tasks)) > limit {
			tasks = tasks[:limit]
		}
		return tasks, nil
	}
	items, err := w.redis.LRange(ctx, w.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]models.SyncTask, 0, len(items))
	for _, item := range items {
		var t models.SyncTask
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
