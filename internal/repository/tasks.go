package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
)

// TaskLedger persists transfer tasks, their counters and their scan cursor.
type TaskLedger struct {
	db  *gorm.DB
	now Clock
	log *logger.Logger
}

// NewTaskLedger creates a ledger over db.
func NewTaskLedger(db *gorm.DB) *TaskLedger {
	return &TaskLedger{
		db:  db,
		now: utcNow,
		log: logger.With("ledger"),
	}
}

// WithClock overrides the clock (tests).
func (l *TaskLedger) WithClock(now Clock) *TaskLedger {
	l.now = func() time.Time { return now().UTC() }
	return l
}

// NewTask holds the fields of a transfer request.
type NewTask struct {
	OwnerID       int64
	SourceChannel string
	Title         string
	Description   *string
	Config        string
}

// Progress is an additive counter update. LastMessageID, when set, replaces the cursor.
type Progress struct {
	Scanned       int
	Matched       int
	Transferred   int
	LastMessageID *int
}

// Pause describes why and where a task paused. A nil LastMessageID keeps
// the stored cursor.
type Pause struct {
	LastMessageID *int
	Reason        models.PauseReason
	WaitSeconds   int
}

// Create records a new task in pending status.
func (l *TaskLedger) Create(ctx context.Context, in NewTask) (*models.TransferTask, error) {
	task := &models.TransferTask{
		OwnerID:       in.OwnerID,
		SourceChannel: in.SourceChannel,
		Title:         in.Title,
		Description:   in.Description,
		Config:        in.Config,
		Status:        models.TaskPending,
	}
	if err := l.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create transfer task: %w", err)
	}
	l.log.Info().Uint("task_id", task.ID).Int64("owner_id", task.OwnerID).Str("channel", task.SourceChannel).Msg("ledger: task created")
	return task, nil
}

// Get returns a task by id, or nil if it does not exist.
func (l *TaskLedger) Get(ctx context.Context, id uint) (*models.TransferTask, error) {
	var task models.TransferTask
	if err := l.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get transfer task: %w", err)
		}
		return nil, nil
	}
	return &task, nil
}

// transition updates a task only while it is in one of the from statuses, so
// repeated or out-of-order transitions are no-ops.
func (l *TaskLedger) transition(ctx context.Context, id uint, from []models.TaskStatus, updates map[string]any) (bool, error) {
	res := l.db.WithContext(ctx).Model(&models.TransferTask{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRunning moves a pending or paused task to running. startedAt is set
// on the first run only. A flood-wait cursor points at the rejected message,
// so it is advanced by one in the same statement that clears the reason:
// the stored cursor then stays an exclusive offset whatever pauses next.
func (l *TaskLedger) MarkRunning(ctx context.Context, id uint) error {
	_, err := l.transition(ctx, id,
		[]models.TaskStatus{models.TaskPending, models.TaskPaused},
		map[string]any{
			"status":     models.TaskRunning,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", l.now()),
			"last_message_id": gorm.Expr(
				"CASE WHEN pause_reason = ? AND last_message_id IS NOT NULL THEN last_message_id + 1 ELSE last_message_id END",
				models.PauseFloodWait),
			"pause_reason":       models.PauseNone,
			"flood_wait_seconds": 0,
		})
	if err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	return nil
}

// MarkPaused records the cursor and pause reason of a running task.
func (l *TaskLedger) MarkPaused(ctx context.Context, id uint, p Pause) error {
	updates := map[string]any{
		"status":             models.TaskPaused,
		"pause_reason":       p.Reason,
		"flood_wait_seconds": p.WaitSeconds,
	}
	if p.LastMessageID != nil {
		updates["last_message_id"] = *p.LastMessageID
	}
	changed, err := l.transition(ctx, id, []models.TaskStatus{models.TaskPending, models.TaskRunning}, updates)
	if err != nil {
		return fmt.Errorf("mark task paused: %w", err)
	}
	if changed {
		ev := l.log.Info().Uint("task_id", id).Str("reason", string(p.Reason))
		if p.LastMessageID != nil {
			ev = ev.Int("last_message_id", *p.LastMessageID)
		}
		ev.Msg("ledger: task paused")
	}
	return nil
}

// MarkCompleted finishes a task. Completing a finished task changes nothing.
func (l *TaskLedger) MarkCompleted(ctx context.Context, id uint) error {
	_, err := l.transition(ctx, id,
		models.ActiveStatuses,
		map[string]any{
			"status":       models.TaskCompleted,
			"completed_at": l.now(),
			"pause_reason": models.PauseNone,
		})
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	return nil
}

// MarkFailed finishes a task with an error message.
func (l *TaskLedger) MarkFailed(ctx context.Context, id uint, message string) error {
	_, err := l.transition(ctx, id,
		models.ActiveStatuses,
		map[string]any{
			"status":        models.TaskFailed,
			"error_message": message,
			"completed_at":  l.now(),
		})
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

// IncrementProgress adds the deltas to the task counters in one statement.
func (l *TaskLedger) IncrementProgress(ctx context.Context, id uint, p Progress) error {
	updates := map[string]any{
		"total_scanned":     gorm.Expr("total_scanned + ?", p.Scanned),
		"total_matched":     gorm.Expr("total_matched + ?", p.Matched),
		"total_transferred": gorm.Expr("total_transferred + ?", p.Transferred),
	}
	if p.LastMessageID != nil {
		updates["last_message_id"] = *p.LastMessageID
	}
	res := l.db.WithContext(ctx).Model(&models.TransferTask{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("increment task progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementBatch counts one more completed batch.
func (l *TaskLedger) IncrementBatch(ctx context.Context, id uint) error {
	res := l.db.WithContext(ctx).Model(&models.TransferTask{}).
		Where("id = ?", id).
		Update("batch_number", gorm.Expr("batch_number + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment task batch: %w", res.Error)
	}
	return nil
}

// SetSession records which account is scanning the task.
func (l *TaskLedger) SetSession(ctx context.Context, id uint, sessionID uint) error {
	if err := l.db.WithContext(ctx).Model(&models.TransferTask{}).
		Where("id = ?", id).
		Update("session_id", sessionID).Error; err != nil {
		return fmt.Errorf("set task session: %w", err)
	}
	return nil
}

// GetActiveByOwner returns the owner's most recent pending, running or paused task, or nil.
func (l *TaskLedger) GetActiveByOwner(ctx context.Context, ownerID int64) (*models.TransferTask, error) {
	var task models.TransferTask
	err := l.db.WithContext(ctx).
		Where("owner_id = ? AND status IN ?", ownerID, models.ActiveStatuses).
		Order("created_at DESC").Order("id DESC").
		First(&task).Error
	if err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get active task: %w", err)
		}
		return nil, nil
	}
	return &task, nil
}

// ListByOwner returns the owner's latest tasks, newest first.
func (l *TaskLedger) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.TransferTask, error) {
	if limit <= 0 {
		limit = 10
	}
	var tasks []models.TransferTask
	err := l.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list owner tasks: %w", err)
	}
	return tasks, nil
}

// ListByStatus returns tasks in status, oldest first.
func (l *TaskLedger) ListByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]models.TransferTask, error) {
	q := l.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tasks []models.TransferTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	return tasks, nil
}

// CleanupOld deletes completed and failed tasks created more than retentionDays ago.
func (l *TaskLedger) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -retentionDays)
	res := l.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []models.TaskStatus{models.TaskCompleted, models.TaskFailed}, cutoff).
		Delete(&models.TransferTask{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup old tasks: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		l.log.Info().Int64("deleted", res.RowsAffected).Int("retention_days", retentionDays).Msg("ledger: old tasks removed")
	}
	return res.RowsAffected, nil
}
