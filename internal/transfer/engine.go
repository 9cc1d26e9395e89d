package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/telegram"
)

// errors
var (
	ErrTaskNotFound    = errors.New("transfer task not found")
	ErrNotResumable    = errors.New("transfer task is not resumable")
	ErrNoCapacity      = errors.New("no session account available")
	ErrAlreadyRunning  = errors.New("transfer task is already running")
	ErrTooManyFailures = errors.New("too many consecutive relay failures")
)

const (
	defaultHandshakeDelay   = 2 * time.Second
	defaultMaxRelayFailures = 5
	completionTimeout       = 15 * time.Second
	maxClaimAttempts        = 3
)

// Transport is the scanning side of a session account.
type Transport interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	ResolveUser(ctx context.Context, username string) (*telegram.Peer, error)
	GetHistory(ctx context.Context, channel *telegram.Channel, q telegram.HistoryQuery) ([]telegram.Message, error)
	ForwardMessage(ctx context.Context, channel *telegram.Channel, msgID int, to *telegram.Peer) error
	SendText(ctx context.Context, to *telegram.Peer, text string) error
}

// Connector hands out a connected transport for a session account.
type Connector interface {
	Connect(ctx context.Context, sessionID uint) (Transport, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, sessionID uint) (Transport, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, sessionID uint) (Transport, error) {
	return f(ctx, sessionID)
}

// PoolConnector connects through a telegram client pool.
func PoolConnector(pool *telegram.Pool) Connector {
	return ConnectorFunc(func(ctx context.Context, sessionID uint) (Transport, error) {
		c, err := pool.GetClient(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Sessions is the part of the session pool the engine uses.
type Sessions interface {
	Acquire(ctx context.Context, exclude []uint) (*models.SessionAccount, error)
	MarkFloodWait(ctx context.Context, id uint, waitSeconds int) error
	IncrementTransfer(ctx context.Context, id uint, count int) error
}

// Ledger is the part of the task ledger the engine uses.
type Ledger interface {
	Create(ctx context.Context, in repository.NewTask) (*models.TransferTask, error)
	Get(ctx context.Context, id uint) (*models.TransferTask, error)
	MarkRunning(ctx context.Context, id uint) error
	MarkPaused(ctx context.Context, id uint, p repository.Pause) error
	MarkCompleted(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, message string) error
	IncrementProgress(ctx context.Context, id uint, p repository.Progress) error
	IncrementBatch(ctx context.Context, id uint) error
	SetSession(ctx context.Context, id uint, sessionID uint) error
}

// Outcome is how a run ended.
type Outcome string

// Outcome constants.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
	OutcomeFailed    Outcome = "failed"
)

// Request selects what to run: an existing task by id, or a new task
// created from Payload when TaskID is zero.
type Request struct {
	TaskID  uint
	Payload *Payload
}

// Result summarizes one run. Counters cover this run only.
type Result struct {
	TaskID      uint
	RunID       uuid.UUID
	Outcome     Outcome
	PauseReason models.PauseReason
	FloodWait   int
	SessionID   uint
	Scanned     int
	Matched     int
	Transferred int
	Elapsed     time.Duration
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	// BotUsername is the receiving actor the scan relays to.
	BotUsername string
	Policy      Policy
	// HandshakeDelay gives the collector time to open its flow.
	HandshakeDelay time.Duration
	// MaxRelayFailures fails the task after that many consecutive
	// non-flood relay errors.
	MaxRelayFailures int
}

// BusySet tracks which session accounts are scanning in this process.
type BusySet struct {
	mu  sync.Mutex
	ids map[uint]uint
}

// NewBusySet creates an empty set.
func NewBusySet() *BusySet {
	return &BusySet{ids: make(map[uint]uint)}
}

// IDs returns the busy session ids.
func (b *BusySet) IDs() []uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	return out
}

// Claim marks sessionID busy for taskID. It fails if another task holds it.
func (b *BusySet) Claim(sessionID, taskID uint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if owner, ok := b.ids[sessionID]; ok && owner != taskID {
		return false
	}
	b.ids[sessionID] = taskID
	return true
}

// Release frees sessionID.
func (b *BusySet) Release(sessionID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ids, sessionID)
}

// Engine scans a source channel newest to oldest and relays matching media
// to the receiving bot, checkpointing every transfer in the ledger.
type Engine struct {
	ledger    Ledger
	sessions  Sessions
	connector Connector
	notifier  Notifier
	events    EventSink
	pacer     *Pacer
	busy      *BusySet

	botUsername string
	handshake   time.Duration
	maxFailures int
	log         *logger.Logger
}

// NewEngine creates an engine. Notifications and events are dropped until
// WithNotifier and WithEvents are called.
func NewEngine(ledger Ledger, sessions Sessions, connector Connector, cfg EngineConfig) *Engine {
	if cfg.HandshakeDelay <= 0 {
		cfg.HandshakeDelay = defaultHandshakeDelay
	}
	if cfg.MaxRelayFailures <= 0 {
		cfg.MaxRelayFailures = defaultMaxRelayFailures
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	return &Engine{
		ledger:      ledger,
		sessions:    sessions,
		connector:   connector,
		notifier:    NotifierFunc(func(context.Context, int64, string) error { return nil }),
		events:      NopSink,
		pacer:       NewPacer(cfg.Policy),
		busy:        NewBusySet(),
		botUsername: telegram.NormalizeUsername(cfg.BotUsername),
		handshake:   cfg.HandshakeDelay,
		maxFailures: cfg.MaxRelayFailures,
		log:         logger.With("engine"),
	}
}

// WithNotifier sets where initiator messages go.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithEvents sets the event sink.
func (e *Engine) WithEvents(s EventSink) *Engine {
	e.events = s
	return e
}

// WithSleep replaces the pacing sleep (tests).
func (e *Engine) WithSleep(s SleepFunc) *Engine {
	e.pacer.Sleep = s
	return e
}

// WithBusySet shares a busy set with other engines or a manager.
func (e *Engine) WithBusySet(b *BusySet) *Engine {
	e.busy = b
	return e
}

// Pacer returns the engine's pacer.
func (e *Engine) Pacer() *Pacer { return e.pacer }

// Busy returns the engine's busy set.
func (e *Engine) Busy() *BusySet { return e.busy }

// Run executes one invocation of a task until it completes, pauses or fails.
// A paused outcome is not an error. Errors before the task exists, such as an
// invalid payload or a task that cannot be resumed, return a nil Result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	task, payload, resumed, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine:  e,
		task:    task,
		payload: payload,
		filter:  NewFilter(payload),
		resumed: resumed,
		started: time.Now(),
		res:     &Result{TaskID: task.ID, RunID: uuid.New()},
	}
	r.log = e.log.With().Uint("task_id", task.ID).Str("run_id", r.res.RunID.String()).Logger()
	return r.execute(ctx)
}

func (e *Engine) prepare(ctx context.Context, req Request) (*models.TransferTask, *Payload, bool, error) {
	if req.TaskID == 0 {
		if req.Payload == nil {
			return nil, nil, false, fmt.Errorf("%w: missing payload", ErrInvalidPayload)
		}
		p := *req.Payload
		p.SourceChannel = telegram.NormalizeUsername(p.SourceChannel)
		if err := p.Validate(); err != nil {
			return nil, nil, false, err
		}
		config, err := p.Marshal()
		if err != nil {
			return nil, nil, false, err
		}
		task, err := e.ledger.Create(ctx, repository.NewTask{
			OwnerID:       p.UserID,
			SourceChannel: p.SourceChannel,
			Title:         p.Title,
			Description:   p.Description,
			Config:        config,
		})
		if err != nil {
			return nil, nil, false, err
		}
		p.TaskID = task.ID
		return task, &p, false, nil
	}

	task, err := e.ledger.Get(ctx, req.TaskID)
	if err != nil {
		return nil, nil, false, err
	}
	if task == nil {
		return nil, nil, false, fmt.Errorf("%w: %d", ErrTaskNotFound, req.TaskID)
	}
	if task.Status != models.TaskPending && task.Status != models.TaskPaused {
		return nil, nil, false, fmt.Errorf("%w: task %d is %s", ErrNotResumable, task.ID, task.Status)
	}
	p, err := ParsePayload([]byte(task.Config))
	if err != nil {
		if markErr := e.ledger.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			e.log.Error().Err(markErr).Uint("task_id", task.ID).Msg("engine: mark failed")
		}
		return nil, nil, false, err
	}
	p.TaskID = task.ID
	p.SourceChannel = telegram.NormalizeUsername(p.SourceChannel)
	return task, p, task.Status == models.TaskPaused, nil
}

// counts are progress deltas not yet written to the ledger.
type counts struct {
	scanned     int
	matched     int
	transferred int
}

// run is the state of one invocation.
type run struct {
	engine  *Engine
	task    *models.TransferTask
	payload *Payload
	filter  *Filter
	resumed bool
	started time.Time
	res     *Result
	log     zerolog.Logger

	session   *models.SessionAccount
	transport Transport
	channel   *telegram.Channel
	bot       *telegram.Peer

	// cursor is the last fully processed message id; 0 before the first one.
	cursor        int
	flushedCursor int
	pending       counts
	batch         int
	failures      int
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	e := r.engine

	if err := r.claimSession(ctx); err != nil {
		return r.setupFailed(ctx, err)
	}
	defer e.busy.Release(r.session.ID)

	transport, err := e.connector.Connect(ctx, r.session.ID)
	if err != nil {
		return r.setupFailed(ctx, fmt.Errorf("connect session %d: %w", r.session.ID, err))
	}
	r.transport = transport

	if r.channel, err = transport.ResolveChannel(ctx, r.payload.SourceChannel); err != nil {
		return r.setupFailed(ctx, err)
	}
	if r.bot, err = transport.ResolveUser(ctx, e.botUsername); err != nil {
		return r.setupFailed(ctx, err)
	}

	cmd, err := EncodeStartCommand(r.payload)
	if err != nil {
		return r.setupFailed(ctx, err)
	}
	if err := transport.SendText(ctx, r.bot, cmd); err != nil {
		return r.setupFailed(ctx, fmt.Errorf("send start command: %w", err))
	}
	if err := e.pacer.Sleep(ctx, e.handshake); err != nil {
		return r.setupFailed(ctx, err)
	}

	if err := e.ledger.MarkRunning(ctx, r.task.ID); err != nil {
		return r.fail(ctx, err)
	}
	r.log.Info().
		Uint("session_id", r.session.ID).
		Str("channel", r.payload.SourceChannel).
		Int("offset", r.task.ResumeOffset()).
		Bool("resumed", r.resumed).
		Msg("engine: scan started")
	r.notify(ctx, startedText(r.task.ID, r.payload, r.resumed))
	r.emit(ctx, r.event(EventTaskStarted))

	return r.scan(ctx)
}

// claimSession acquires an account that no other run in this process holds.
func (r *run) claimSession(ctx context.Context) error {
	e := r.engine
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		acc, err := e.sessions.Acquire(ctx, e.busy.IDs())
		if err != nil {
			return err
		}
		if acc == nil {
			return ErrNoCapacity
		}
		if !e.busy.Claim(acc.ID, r.task.ID) {
			continue
		}
		r.session = acc
		r.res.SessionID = acc.ID
		if err := e.ledger.SetSession(ctx, r.task.ID, acc.ID); err != nil {
			e.busy.Release(acc.ID)
			return err
		}
		return nil
	}
	return ErrNoCapacity
}

// setupFailed handles errors before the scan loop starts. A flood pauses the
// task without moving its cursor, a cancellation leaves it untouched, a paused
// task that finds no capacity stays paused, and anything else fails it.
func (r *run) setupFailed(ctx context.Context, err error) (*Result, error) {
	e := r.engine

	if secs, ok := telegram.AsFloodWait(err); ok {
		bg := context.WithoutCancel(ctx)
		r.markSessionFlood(bg, secs)
		if r.task.Status == models.TaskPending {
			if perr := e.ledger.MarkPaused(bg, r.task.ID, repository.Pause{Reason: models.PauseFloodWait, WaitSeconds: secs}); perr != nil {
				return r.fail(ctx, perr)
			}
		}
		r.res.Outcome = OutcomePaused
		r.res.PauseReason = models.PauseFloodWait
		r.res.FloodWait = secs
		r.res.Elapsed = time.Since(r.started)
		r.log.Warn().Int("wait_seconds", secs).Msg("engine: flood wait before scan")
		r.notify(bg, pausedText(r.task.ID, r.res, e.pacer.FloodBackoff(secs)))
		r.emit(bg, r.pausedEvent())
		return r.res, nil
	}

	if ctx.Err() != nil {
		r.res.Outcome = OutcomePaused
		r.res.PauseReason = models.PauseStopped
		r.res.Elapsed = time.Since(r.started)
		r.log.Info().Msg("engine: stopped before scan")
		return r.res, ctx.Err()
	}

	if errors.Is(err, ErrNoCapacity) && r.task.Status == models.TaskPaused {
		r.res.Outcome = OutcomePaused
		r.res.PauseReason = r.task.PauseReason
		r.res.Elapsed = time.Since(r.started)
		r.log.Warn().Msg("engine: no session available, task stays paused")
		return r.res, err
	}

	return r.fail(ctx, err)
}

func (r *run) scan(ctx context.Context) (*Result, error) {
	e := r.engine
	policy := e.pacer.Policy
	offset := r.task.ResumeOffset()

	for {
		page, err := r.transport.GetHistory(ctx, r.channel, telegram.HistoryQuery{OffsetID: offset, Limit: telegram.MaxHistoryPage})
		if err != nil {
			if ctx.Err() != nil {
				return r.stop(ctx)
			}
			if secs, ok := telegram.AsFloodWait(err); ok {
				// the page starting at offset is fetched again on resume
				var cursor *int
				if offset > 0 {
					c := offset - 1
					cursor = &c
				}
				return r.pauseFlood(ctx, cursor, secs)
			}
			return r.fail(ctx, fmt.Errorf("get history: %w", err))
		}
		if len(page) == 0 {
			return r.complete(ctx)
		}

		for _, msg := range page {
			if ctx.Err() != nil {
				return r.stop(ctx)
			}
			if r.batch >= policy.BatchSize {
				return r.pauseBatch(ctx)
			}

			r.pending.scanned++
			if msg.Service {
				r.cursor = msg.ID
				continue
			}

			decision, reason := r.filter.Check(msg)
			if decision == Stop {
				r.log.Debug().Int("message_id", msg.ID).Msg("engine: reached start of date range")
				return r.complete(ctx)
			}
			if decision == Skip {
				r.log.Trace().Int("message_id", msg.ID).Str("reason", reason).Msg("engine: message skipped")
				r.cursor = msg.ID
				continue
			}

			r.pending.matched++
			if err := r.transport.ForwardMessage(ctx, r.channel, msg.ID, r.bot); err != nil {
				if secs, ok := telegram.AsFloodWait(err); ok {
					// the message is scanned again on resume
					r.pending.scanned--
					r.pending.matched--
					id := msg.ID
					return r.pauseFlood(ctx, &id, secs)
				}
				if ctx.Err() != nil {
					r.pending.scanned--
					r.pending.matched--
					return r.stop(ctx)
				}
				r.failures++
				r.log.Warn().Err(err).Int("message_id", msg.ID).Int("consecutive", r.failures).Msg("engine: relay failed")
				if r.failures >= e.maxFailures {
					return r.fail(ctx, fmt.Errorf("%w: %w", ErrTooManyFailures, err))
				}
				r.cursor = msg.ID
				continue
			}

			r.failures = 0
			r.cursor = msg.ID
			r.pending.transferred++
			r.batch++
			if err := r.flush(ctx); err != nil {
				return r.fail(ctx, err)
			}
			if err := e.sessions.IncrementTransfer(ctx, r.session.ID, 1); err != nil {
				return r.fail(ctx, err)
			}

			if policy.ShouldReportProgress(r.batch) {
				r.notify(ctx, progressText(r.task.ID, r.res))
				r.emit(ctx, r.event(EventTaskProgress))
			}
			if err := e.pacer.AfterTransfer(ctx, r.batch); err != nil {
				return r.stop(ctx)
			}
		}

		offset = page[len(page)-1].ID
		if err := r.flush(ctx); err != nil {
			return r.fail(ctx, err)
		}
	}
}

// flush writes the pending deltas and the cursor in one ledger update.
func (r *run) flush(ctx context.Context) error {
	if r.pending == (counts{}) && r.cursor == r.flushedCursor {
		return nil
	}
	p := repository.Progress{
		Scanned:     r.pending.scanned,
		Matched:     r.pending.matched,
		Transferred: r.pending.transferred,
	}
	if r.cursor > 0 {
		c := r.cursor
		p.LastMessageID = &c
	}
	if err := r.engine.ledger.IncrementProgress(ctx, r.task.ID, p); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	r.res.Scanned += r.pending.scanned
	r.res.Matched += r.pending.matched
	r.res.Transferred += r.pending.transferred
	r.pending = counts{}
	r.flushedCursor = r.cursor
	return nil
}

func (r *run) cursorPtr() *int {
	if r.cursor == 0 {
		return nil
	}
	c := r.cursor
	return &c
}

func (r *run) complete(ctx context.Context) (*Result, error) {
	e := r.engine
	if err := r.flush(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.sendComplete(ctx); err != nil {
		r.log.Warn().Err(err).Msg("engine: completion command not delivered")
	}
	if err := e.ledger.MarkCompleted(ctx, r.task.ID); err != nil {
		return r.fail(ctx, err)
	}
	r.res.Outcome = OutcomeCompleted
	r.res.Elapsed = time.Since(r.started)
	r.log.Info().
		Int("scanned", r.res.Scanned).
		Int("matched", r.res.Matched).
		Int("transferred", r.res.Transferred).
		Dur("elapsed", r.res.Elapsed).
		Msg("engine: scan completed")
	r.notify(ctx, completedText(r.task.ID, r.res))
	r.emit(ctx, r.event(EventTaskCompleted))
	return r.res, nil
}

func (r *run) pauseBatch(ctx context.Context) (*Result, error) {
	e := r.engine
	if err := r.flush(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := e.ledger.MarkPaused(ctx, r.task.ID, repository.Pause{LastMessageID: r.cursorPtr(), Reason: models.PauseBatchLimit}); err != nil {
		return r.fail(ctx, err)
	}
	if err := e.ledger.IncrementBatch(ctx, r.task.ID); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.sendComplete(ctx); err != nil {
		r.log.Warn().Err(err).Msg("engine: completion command not delivered")
	}
	return r.paused(ctx, models.PauseBatchLimit, 0)
}

// pauseFlood stops on a flood wait. The completion command is not sent: the
// session is blocked, and the resumed run continues the same collector flow.
func (r *run) pauseFlood(ctx context.Context, cursor *int, secs int) (*Result, error) {
	e := r.engine
	if err := r.flush(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := e.ledger.MarkPaused(ctx, r.task.ID, repository.Pause{LastMessageID: cursor, Reason: models.PauseFloodWait, WaitSeconds: secs}); err != nil {
		return r.fail(ctx, err)
	}
	r.markSessionFlood(ctx, secs)
	return r.paused(ctx, models.PauseFloodWait, secs)
}

// stop pauses a cancelled run at the last processed message.
func (r *run) stop(ctx context.Context) (*Result, error) {
	e := r.engine
	bg := context.WithoutCancel(ctx)
	if err := r.flush(bg); err != nil {
		return r.fail(bg, err)
	}
	if err := e.ledger.MarkPaused(bg, r.task.ID, repository.Pause{LastMessageID: r.cursorPtr(), Reason: models.PauseStopped}); err != nil {
		return r.fail(bg, err)
	}
	if err := r.sendComplete(bg); err != nil {
		r.log.Warn().Err(err).Msg("engine: completion command not delivered")
	}
	return r.paused(bg, models.PauseStopped, 0)
}

func (r *run) paused(ctx context.Context, reason models.PauseReason, secs int) (*Result, error) {
	r.res.Outcome = OutcomePaused
	r.res.PauseReason = reason
	r.res.FloodWait = secs
	r.res.Elapsed = time.Since(r.started)
	r.log.Info().
		Str("reason", string(reason)).
		Int("cursor", r.cursor).
		Int("wait_seconds", secs).
		Int("transferred", r.res.Transferred).
		Msg("engine: scan paused")
	var backoff time.Duration
	if secs > 0 {
		backoff = r.engine.pacer.FloodBackoff(secs)
	}
	r.notify(ctx, pausedText(r.task.ID, r.res, backoff))
	r.emit(ctx, r.pausedEvent())
	return r.res, nil
}

// fail marks the task failed. Progress already written is kept.
func (r *run) fail(ctx context.Context, cause error) (*Result, error) {
	e := r.engine
	bg := context.WithoutCancel(ctx)
	if r.pending != (counts{}) || r.cursor != r.flushedCursor {
		if err := r.flush(bg); err != nil {
			r.log.Error().Err(err).Msg("engine: final checkpoint failed")
		}
	}
	if err := e.ledger.MarkFailed(bg, r.task.ID, cause.Error()); err != nil {
		r.log.Error().Err(err).Msg("engine: mark failed")
	}
	r.res.Outcome = OutcomeFailed
	r.res.Elapsed = time.Since(r.started)
	r.log.Error().Err(cause).Int("cursor", r.cursor).Msg("engine: scan failed")
	r.notify(bg, failedText(r.task.ID, cause))
	ev := r.event(EventTaskFailed)
	ev.Error = cause.Error()
	r.emit(bg, ev)
	return r.res, cause
}

func (r *run) markSessionFlood(ctx context.Context, secs int) {
	if r.session == nil {
		return
	}
	if err := r.engine.sessions.MarkFloodWait(ctx, r.session.ID, secs); err != nil {
		r.log.Error().Err(err).Uint("session_id", r.session.ID).Msg("engine: mark session flood wait")
	}
}

// sendComplete tells the collector to finalize, bounded so a slow network
// cannot hold the run open.
func (r *run) sendComplete(ctx context.Context) error {
	if r.transport == nil || r.bot == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()
	return r.transport.SendText(ctx, r.bot, CompleteCommand)
}

func (r *run) notify(ctx context.Context, text string) {
	if err := r.engine.notifier.Notify(ctx, r.payload.UserID, text); err != nil {
		r.log.Warn().Err(err).Int64("user_id", r.payload.UserID).Msg("engine: notify failed")
	}
}

func (r *run) emit(ctx context.Context, ev Event) {
	r.engine.events.Emit(ctx, ev)
}

func (r *run) event(typ string) Event {
	ev := NewEvent(typ)
	ev.TaskID = r.task.ID
	ev.RunID = r.res.RunID
	ev.Title = r.payload.Title
	ev.Scanned = r.res.Scanned
	ev.Matched = r.res.Matched
	ev.Transferred = r.res.Transferred
	return ev
}

func (r *run) pausedEvent() Event {
	ev := r.event(EventTaskPaused)
	ev.Reason = string(r.res.PauseReason)
	ev.WaitSeconds = r.res.FloodWait
	return ev
}
