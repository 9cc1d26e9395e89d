package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/telegram"
)

// Runner executes one invocation of a task.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// TaskStore is the part of the ledger the manager uses.
type TaskStore interface {
	Create(ctx context.Context, in repository.NewTask) (*models.TransferTask, error)
	Get(ctx context.Context, id uint) (*models.TransferTask, error)
	MarkPaused(ctx context.Context, id uint, p repository.Pause) error
	ListByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]models.TransferTask, error)
}

// RunInfo describes a run in progress.
type RunInfo struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uint      `json:"task_id"`
	OwnerID   int64     `json:"owner_id"`
	StartedAt time.Time `json:"started_at"`
}

type pendingResume struct {
	cancel func() bool
}

type activeRun struct {
	info   RunInfo
	cancel context.CancelFunc
}

// ScheduleFunc calls f after d and returns a function that cancels the call.
type ScheduleFunc func(d time.Duration, f func()) (cancel func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ManagerConfig tunes the manager.
type ManagerConfig struct {
	// AutoResume restarts batch pauses at once and flood pauses after the
	// pacer's flood backoff.
	AutoResume bool
}

// Manager runs engine invocations in the background, one per task, and
// optionally resumes paused tasks on its own.
// thread-safe
type Manager struct {
	mu      sync.Mutex
	runs    map[uint]*activeRun
	timers  map[uint]*pendingResume
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	runner     Runner
	tasks      TaskStore
	pacer      *Pacer
	autoResume bool
	schedule   ScheduleFunc
	onFinish   func(res *Result, err error)
	log        *logger.Logger
}

// NewManager creates a manager. pacer supplies the flood backoff.
func NewManager(runner Runner, tasks TaskStore, pacer *Pacer, cfg ManagerConfig) *Manager {
	// runs outlive the request that started them
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runs:       make(map[uint]*activeRun),
		timers:     make(map[uint]*pendingResume),
		baseCtx:    ctx,
		cancel:     cancel,
		runner:     runner,
		tasks:      tasks,
		pacer:      pacer,
		autoResume: cfg.AutoResume,
		schedule:   afterFunc,
		log:        logger.With("manager"),
	}
}

// WithScheduler replaces the resume timer (tests).
func (m *Manager) WithScheduler(s ScheduleFunc) *Manager {
	m.schedule = s
	return m
}

// OnFinish registers a hook called after every run (tests, metrics).
func (m *Manager) OnFinish(f func(res *Result, err error)) *Manager {
	m.onFinish = f
	return m
}

// Start records a new task for p and scans it in the background.
// An owner runs one task at a time.
func (m *Manager) Start(ctx context.Context, p *Payload) (*models.TransferTask, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	normalized := *p
	p = &normalized
	p.SourceChannel = telegram.NormalizeUsername(p.SourceChannel)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("manager is stopped")
	}
	for _, r := range m.runs {
		if r.info.OwnerID == p.UserID {
			return nil, fmt.Errorf("%w: task %d", ErrAlreadyRunning, r.info.TaskID)
		}
	}

	config, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	task, err := m.tasks.Create(ctx, repository.NewTask{
		OwnerID:       p.UserID,
		SourceChannel: p.SourceChannel,
		Title:         p.Title,
		Description:   p.Description,
		Config:        config,
	})
	if err != nil {
		return nil, err
	}
	m.launchLocked(task.ID, task.OwnerID)
	return task, nil
}

// Resume scans a paused task again from its cursor.
func (m *Manager) Resume(ctx context.Context, taskID uint) (*models.TransferTask, error) {
	task, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	if task.Status != models.TaskPaused && task.Status != models.TaskPending {
		return nil, fmt.Errorf("%w: task %d is %s", ErrNotResumable, taskID, task.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("manager is stopped")
	}
	if _, ok := m.runs[taskID]; ok {
		return nil, fmt.Errorf("%w: task %d", ErrAlreadyRunning, taskID)
	}
	m.cancelTimerLocked(taskID)
	m.launchLocked(task.ID, task.OwnerID)
	return task, nil
}

// Stop cancels a task's run and any scheduled resume. The engine pauses the
// task at its last processed message. It reports whether anything was stopped.
func (m *Manager) Stop(taskID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped := m.cancelTimerLocked(taskID)
	if r, ok := m.runs[taskID]; ok {
		r.cancel()
		stopped = true
	}
	return stopped
}

// StopAll cancels every run and timer and waits for the runs to pause.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.closed = true
	for id := range m.timers {
		m.cancelTimerLocked(id)
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("manager: all runs stopped")
}

// Running returns the runs in progress, oldest first.
func (m *Manager) Running() []RunInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunInfo, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// IsRunning reports whether taskID has a run in progress.
func (m *Manager) IsRunning(taskID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[taskID]
	return ok
}

// Recover settles tasks left running by a previous process: they are paused
// with their cursor kept. With auto-resume, batch and flood pauses are
// scheduled again. It returns the number of tasks it paused.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	running, err := m.tasks.ListByStatus(ctx, models.TaskRunning, 0)
	if err != nil {
		return 0, err
	}
	for _, t := range running {
		if err := m.tasks.MarkPaused(ctx, t.ID, repository.Pause{Reason: models.PauseStopped}); err != nil {
			return 0, err
		}
		m.log.Warn().Uint("task_id", t.ID).Msg("manager: interrupted task paused")
	}

	if m.autoResume {
		paused, err := m.tasks.ListByStatus(ctx, models.TaskPaused, 0)
		if err != nil {
			return len(running), err
		}
		m.mu.Lock()
		for _, t := range paused {
			switch t.PauseReason {
			case models.PauseBatchLimit:
				m.scheduleLocked(t.ID, 0)
			case models.PauseFloodWait:
				m.scheduleLocked(t.ID, m.pacer.FloodBackoff(t.FloodWaitSeconds))
			}
		}
		m.mu.Unlock()
	}
	return len(running), nil
}

func (m *Manager) launchLocked(taskID uint, ownerID int64) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	run := &activeRun{
		info:   RunInfo{ID: uuid.New(), TaskID: taskID, OwnerID: ownerID, StartedAt: time.Now()},
		cancel: cancel,
	}
	m.runs[taskID] = run
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()

		res, err := m.runner.Run(ctx, Request{TaskID: taskID})

		m.mu.Lock()
		if cur, ok := m.runs[taskID]; ok && cur == run {
			delete(m.runs, taskID)
		}
		m.mu.Unlock()

		m.finished(taskID, res, err)
	}()
}

func (m *Manager) finished(taskID uint, res *Result, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		m.log.Error().Err(err).Uint("task_id", taskID).Msg("manager: run ended with error")
	}
	if m.onFinish != nil {
		m.onFinish(res, err)
	}
	if !m.autoResume || res == nil || res.Outcome != OutcomePaused {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch res.PauseReason {
	case models.PauseBatchLimit:
		m.scheduleLocked(taskID, 0)
	case models.PauseFloodWait:
		m.scheduleLocked(taskID, m.pacer.FloodBackoff(res.FloodWait))
	}
}

func (m *Manager) scheduleLocked(taskID uint, d time.Duration) {
	if m.closed {
		return
	}
	m.cancelTimerLocked(taskID)
	m.log.Info().Uint("task_id", taskID).Dur("in", d).Msg("manager: resume scheduled")

	pr := &pendingResume{}
	m.timers[taskID] = pr
	pr.cancel = m.schedule(d, func() { m.fire(taskID, pr) })
}

func (m *Manager) fire(taskID uint, pr *pendingResume) {
	m.mu.Lock()
	if m.timers[taskID] != pr {
		m.mu.Unlock()
		return
	}
	delete(m.timers, taskID)
	m.mu.Unlock()

	if _, err := m.Resume(m.baseCtx, taskID); err != nil {
		m.log.Warn().Err(err).Uint("task_id", taskID).Msg("manager: scheduled resume failed")
	}
}

func (m *Manager) cancelTimerLocked(taskID uint) bool {
	pr, ok := m.timers[taskID]
	if !ok {
		return false
	}
	delete(m.timers, taskID)
	if pr.cancel != nil {
		pr.cancel()
	}
	return true
}
