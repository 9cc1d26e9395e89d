package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func intPtr(v int) *int { return &v }

func createTask(t *testing.T, ledger *TaskLedger, owner int64) *models.TransferTask {
	t.Helper()
	task, err := ledger.Create(context.Background(), NewTask{
		OwnerID:       owner,
		SourceChannel: "source",
		Title:         "cats",
		Config:        `{"mode":"all"}`,
	})
	require.NoError(t, err)
	return task
}

func TestTaskLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	ledger := NewTaskLedger(newTestDB(t)).WithClock(clock.Now)

	task := createTask(t, ledger, 1)
	assert.Equal(t, models.TaskPending, task.Status)

	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	got, err := ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	firstStart := *got.StartedAt

	require.NoError(t, ledger.MarkPaused(ctx, task.ID, Pause{LastMessageID: intPtr(120), Reason: models.PauseFloodWait, WaitSeconds: 30}))
	got, err = ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPaused, got.Status)
	assert.Equal(t, 120, *got.LastMessageID)
	assert.Equal(t, models.PauseFloodWait, got.PauseReason)
	assert.Equal(t, 30, got.FloodWaitSeconds)

	clock.Advance(time.Hour)
	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	got, err = ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, got.Status)
	assert.True(t, firstStart.Equal(*got.StartedAt), "startedAt is kept on resume")
	assert.Equal(t, models.PauseNone, got.PauseReason)
	assert.Equal(t, 121, *got.LastMessageID, "the flood-rejected message stays ahead of the cursor")
	assert.Equal(t, 121, got.ResumeOffset())

	require.NoError(t, ledger.MarkCompleted(ctx, task.ID))
	got, err = ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	completedAt := *got.CompletedAt

	t.Run("transitions are idempotent no-ops once terminal", func(t *testing.T) {
		clock.Advance(time.Hour)
		require.NoError(t, ledger.MarkCompleted(ctx, task.ID))
		require.NoError(t, ledger.MarkFailed(ctx, task.ID, "late failure"))
		require.NoError(t, ledger.MarkRunning(ctx, task.ID))
		require.NoError(t, ledger.MarkPaused(ctx, task.ID, Pause{LastMessageID: intPtr(1)}))

		got, err := ledger.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, got.Status)
		assert.True(t, completedAt.Equal(*got.CompletedAt))
		assert.Nil(t, got.ErrorMessage)
		assert.Equal(t, 121, *got.LastMessageID)
	})
}

func TestTaskLedger_StopAfterFloodResumeKeepsRejectedMessage(t *testing.T) {
	ctx := context.Background()
	ledger := NewTaskLedger(newTestDB(t))
	task := createTask(t, ledger, 1)

	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	require.NoError(t, ledger.MarkPaused(ctx, task.ID, Pause{LastMessageID: intPtr(40), Reason: models.PauseFloodWait, WaitSeconds: 5}))
	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	require.NoError(t, ledger.MarkPaused(ctx, task.ID, Pause{Reason: models.PauseStopped}))

	got, err := ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PauseStopped, got.PauseReason)
	assert.Equal(t, 41, got.ResumeOffset())

	t.Run("setup flood without cursor stays empty", func(t *testing.T) {
		other := createTask(t, ledger, 2)
		require.NoError(t, ledger.MarkPaused(ctx, other.ID, Pause{Reason: models.PauseFloodWait, WaitSeconds: 5}))
		require.NoError(t, ledger.MarkRunning(ctx, other.ID))

		got, err := ledger.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastMessageID)
	})
}

func TestTaskLedger_MarkFailed(t *testing.T) {
	ctx := context.Background()
	ledger := NewTaskLedger(newTestDB(t))
	task := createTask(t, ledger, 1)

	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	require.NoError(t, ledger.MarkFailed(ctx, task.ID, "db down"))

	got, err := ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "db down", *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestTaskLedger_IncrementProgress(t *testing.T) {
	ctx := context.Background()
	ledger := NewTaskLedger(newTestDB(t))
	task := createTask(t, ledger, 1)

	cursor := 90
	require.NoError(t, ledger.IncrementProgress(ctx, task.ID, Progress{Scanned: 5, Matched: 2, Transferred: 1, LastMessageID: &cursor}))
	require.NoError(t, ledger.IncrementProgress(ctx, task.ID, Progress{Scanned: 3}))
	require.NoError(t, ledger.IncrementBatch(ctx, task.ID))

	got, err := ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.TotalScanned)
	assert.Equal(t, 2, got.TotalMatched)
	assert.Equal(t, 1, got.TotalTransferred)
	assert.Equal(t, 90, *got.LastMessageID, "cursor unchanged when not supplied")
	assert.Equal(t, 1, got.BatchNumber)

	assert.ErrorIs(t, ledger.IncrementProgress(ctx, 999, Progress{Scanned: 1}), ErrNotFound)
}

func TestTaskLedger_OwnerQueries(t *testing.T) {
	ctx := context.Background()
	ledger := NewTaskLedger(newTestDB(t))

	done := createTask(t, ledger, 7)
	require.NoError(t, ledger.MarkCompleted(ctx, done.ID))
	active := createTask(t, ledger, 7)
	createTask(t, ledger, 8)

	got, err := ledger.GetActiveByOwner(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)

	none, err := ledger.GetActiveByOwner(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := ledger.ListByOwner(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	pending, err := ledger.ListByStatus(ctx, models.TaskPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestTaskLedger_CleanupOld(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newFakeClock()
	ledger := NewTaskLedger(db).WithClock(clock.Now)

	old := createTask(t, ledger, 1)
	require.NoError(t, ledger.MarkCompleted(ctx, old.ID))
	oldPaused := createTask(t, ledger, 1)
	require.NoError(t, ledger.MarkPaused(ctx, oldPaused.ID, Pause{LastMessageID: intPtr(5), Reason: models.PauseBatchLimit}))
	recent := createTask(t, ledger, 1)
	require.NoError(t, ledger.MarkFailed(ctx, recent.ID, "x"))

	longAgo := clock.Now().AddDate(0, 0, -45)
	require.NoError(t, db.Model(&models.TransferTask{}).Where("id IN ?", []uint{old.ID, oldPaused.ID}).Update("created_at", longAgo).Error)
	require.NoError(t, db.Model(&models.TransferTask{}).Where("id = ?", recent.ID).Update("created_at", clock.Now().AddDate(0, 0, -1)).Error)

	deleted, err := ledger.CleanupOld(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := ledger.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := ledger.Get(ctx, oldPaused.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "paused tasks are never cleaned up")
}

func TestTaskLedger_PauseWithoutCursorKeepsIt(t *testing.T) {
	ctx := context.Background()
	ledger := NewTaskLedger(newTestDB(t))
	task := createTask(t, ledger, 1)

	require.NoError(t, ledger.MarkRunning(ctx, task.ID))
	require.NoError(t, ledger.IncrementProgress(ctx, task.ID, Progress{Scanned: 1, LastMessageID: intPtr(77)}))
	require.NoError(t, ledger.MarkPaused(ctx, task.ID, Pause{Reason: models.PauseStopped}))

	got, err := ledger.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPaused, got.Status)
	assert.Equal(t, 77, *got.LastMessageID)
	assert.Equal(t, 77, got.ResumeOffset())
}
