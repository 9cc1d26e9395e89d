// Package collector is the receiving side of a transfer: it gathers the media
// a scanning account relays to the bot, deduplicates it and assembles it into
// a collection.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/telegram"
	"github.com/blockedby/relaybot/internal/transfer"
)

const (
	// DefaultDedupBatch is how many new items trigger one bulk existence check.
	DefaultDedupBatch = 100
	// DefaultTimeout bounds the total lifetime of a flow.
	DefaultTimeout = 40 * time.Minute

	defaultInbox = 256
)

// ErrNoConfig aborts a flow that was never given a transfer payload.
var ErrNoConfig = errors.New("collector flow has no transfer payload")

// State is the phase of a flow.
type State int

// State constants.
const (
	StateAwaitingConfig State = iota
	StateCollecting
	StateFinalizing
	StateTimedOut
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingConfig:
		return "awaiting_config"
	case StateCollecting:
		return "collecting"
	case StateFinalizing:
		return "finalizing"
	case StateTimedOut:
		return "timed_out"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Item is one relayed media file.
type Item struct {
	FileID       string
	UniqueFileID string
	Kind         models.FileType
	MessageID    int
}

// Summary describes what a flow saw besides the items it kept.
type Summary struct {
	Received   int
	Duplicates int
	TimedOut   bool
}

// Deduper answers bulk existence checks.
type Deduper interface {
	BatchCheckDuplicates(ctx context.Context, uniqueFileIDs []string) ([]string, error)
}

// Finalizer turns the collected items into a collection.
type Finalizer interface {
	Finalize(ctx context.Context, p *transfer.Payload, items []Item, sum Summary) error
}

// FlowConfig tunes a flow.
type FlowConfig struct {
	DedupBatch int
	Timeout    time.Duration
	Inbox      int
}

func (c FlowConfig) withDefaults() FlowConfig {
	if c.DedupBatch <= 0 {
		c.DedupBatch = DefaultDedupBatch
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Inbox <= 0 {
		c.Inbox = defaultInbox
	}
	return c
}

// Flow accumulates the media one sender relays during one transfer.
type Flow struct {
	senderID  int64
	payload   *transfer.Payload
	dedup     Deduper
	finalizer Finalizer
	cfg       FlowConfig
	log       zerolog.Logger

	inbox  chan telegram.InboundMessage
	done   chan struct{}
	sealed chan struct{}

	// sendMu orders a completion command against sealing, so nothing
	// relayed after it lands in this flow.
	sendMu   sync.Mutex
	sealOnce sync.Once

	mu    sync.Mutex
	state State

	items      []Item
	seen       map[string]struct{}
	checked    int
	received   int
	duplicates int
}

// NewFlow creates a flow for senderID. It waits in AwaitingConfig until Run.
func NewFlow(senderID int64, p *transfer.Payload, dedup Deduper, finalizer Finalizer, cfg FlowConfig) *Flow {
	cfg = cfg.withDefaults()
	log := logger.With("collector").With().Int64("sender_id", senderID).Logger()
	if p != nil {
		log = log.With().Uint("task_id", p.TaskID).Str("title", p.Title).Logger()
	}
	return &Flow{
		senderID:  senderID,
		payload:   p,
		dedup:     dedup,
		finalizer: finalizer,
		cfg:       cfg,
		log:       log,
		inbox:     make(chan telegram.InboundMessage, cfg.Inbox),
		done:      make(chan struct{}),
		sealed:    make(chan struct{}),
		seen:      make(map[string]struct{}),
	}
}

// SenderID returns the account the flow listens to.
func (f *Flow) SenderID() int64 { return f.senderID }

// State returns the current phase.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Done is closed when the flow has finished.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Deliver queues a message for the flow. It reports false once the flow has
// stopped collecting: after its completion command, timeout or cancellation,
// even while it is still finalizing.
func (f *Flow) Deliver(msg telegram.InboundMessage) bool {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if !f.Collecting() {
		return false
	}
	select {
	case f.inbox <- msg:
	case <-f.sealed:
		return false
	}
	if transfer.IsCompleteCommand(msg.Text) {
		f.seal()
	}
	return true
}

// Collecting reports whether the flow still accepts messages.
func (f *Flow) Collecting() bool {
	select {
	case <-f.sealed:
		return false
	default:
		return true
	}
}

func (f *Flow) seal() {
	f.sealOnce.Do(func() { close(f.sealed) })
}

// Run collects until the completion command, the timeout or ctx ends the
// flow, then finalizes whatever was gathered. A timeout is not an error.
func (f *Flow) Run(ctx context.Context) error {
	defer close(f.done)
	defer f.setState(StateDone)
	defer f.seal()

	if f.payload == nil {
		f.log.Error().Msg("collector: flow started without payload")
		return ErrNoConfig
	}
	f.setState(StateCollecting)
	f.log.Info().Dur("timeout", f.cfg.Timeout).Msg("collector: flow started")

	timer := time.NewTimer(f.cfg.Timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.setState(StateTimedOut)
			f.log.Warn().Msg("collector: flow interrupted, finalizing partial result")
			return f.finalize(context.WithoutCancel(ctx), true)

		case <-timer.C:
			f.setState(StateTimedOut)
			f.log.Warn().Int("items", len(f.items)).Msg("collector: flow timed out, finalizing partial result")
			return f.finalize(ctx, true)

		case msg := <-f.inbox:
			if transfer.IsCompleteCommand(msg.Text) {
				f.setState(StateFinalizing)
				return f.finalize(ctx, false)
			}
			if transfer.IsStartCommand(msg.Text) {
				f.log.Debug().Msg("collector: start command inside a flow ignored")
				continue
			}
			if msg.Media == nil {
				continue
			}
			f.add(Item{
				FileID:       msg.Media.FileID(),
				UniqueFileID: msg.Media.UniqueFileID(),
				Kind:         msg.Media.Kind,
				MessageID:    msg.MessageID,
			})
			if len(f.items)-f.checked >= f.cfg.DedupBatch {
				f.checkPending(ctx)
			}
		}
	}
}

// add buffers an item. Repeats within the flow count as duplicates.
func (f *Flow) add(it Item) {
	f.received++
	if _, ok := f.seen[it.UniqueFileID]; ok {
		f.duplicates++
		return
	}
	f.seen[it.UniqueFileID] = struct{}{}
	f.items = append(f.items, it)
}

// checkPending drops buffered items already stored, with one query for every
// item added since the previous check. On error the items are kept; the
// insert skips duplicates anyway.
func (f *Flow) checkPending(ctx context.Context) {
	pending := f.items[f.checked:]
	if len(pending) == 0 {
		return
	}
	ids := make([]string, len(pending))
	for i, it := range pending {
		ids[i] = it.UniqueFileID
	}
	existing, err := f.dedup.BatchCheckDuplicates(ctx, ids)
	if err != nil {
		f.log.Error().Err(err).Int("items", len(ids)).Msg("collector: duplicate check failed")
		f.checked = len(f.items)
		return
	}
	if len(existing) > 0 {
		stored := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			stored[id] = struct{}{}
		}
		kept := f.items[:f.checked]
		for _, it := range pending {
			if _, dup := stored[it.UniqueFileID]; dup {
				f.duplicates++
				continue
			}
			kept = append(kept, it)
		}
		f.items = kept
	}
	f.checked = len(f.items)
	f.log.Debug().Int("checked", len(ids)).Int("existing", len(existing)).Msg("collector: batch deduplicated")
}

func (f *Flow) finalize(ctx context.Context, timedOut bool) error {
	f.seal()
	f.checkPending(ctx)
	sum := Summary{Received: f.received, Duplicates: f.duplicates, TimedOut: timedOut}
	f.log.Info().
		Int("received", sum.Received).
		Int("kept", len(f.items)).
		Int("duplicates", sum.Duplicates).
		Bool("timed_out", timedOut).
		Msg("collector: finalizing")
	return f.finalizer.Finalize(ctx, f.payload, f.items, sum)
}
