package collector

import (
	"context"
	"sync"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/telegram"
	"github.com/blockedby/relaybot/internal/transfer"
)

// SenderCheck reports whether a sender may open flows, usually because it is
// one of the session accounts.
type SenderCheck func(ctx context.Context, senderID int64) bool

// Registry keeps one flow per sender and routes inbound messages to it.
// thread-safe
type Registry struct {
	dedup     Deduper
	finalizer Finalizer
	cfg       FlowConfig
	allowed   SenderCheck

	mu     sync.Mutex
	flows  map[int64]*Flow
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

// NewRegistry creates a registry. A nil check lets any sender open a flow.
func NewRegistry(dedup Deduper, finalizer Finalizer, cfg FlowConfig, allowed SenderCheck) *Registry {
	// flows outlive the update that opened them
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		dedup:     dedup,
		finalizer: finalizer,
		cfg:       cfg,
		allowed:   allowed,
		flows:     make(map[int64]*Flow),
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.With("registry"),
	}
}

// Handle routes one inbound message. It reports whether the message belonged
// to the transfer protocol, so other handlers can skip it.
func (r *Registry) Handle(ctx context.Context, msg telegram.InboundMessage) bool {
	if transfer.IsStartCommand(msg.Text) {
		r.open(ctx, msg)
		return true
	}

	r.mu.Lock()
	flow := r.collectingLocked(msg.SenderID)
	r.mu.Unlock()
	if flow == nil {
		if transfer.IsCompleteCommand(msg.Text) {
			r.log.Debug().Int64("sender_id", msg.SenderID).Msg("registry: completion without flow ignored")
			return true
		}
		return false
	}
	if !flow.Deliver(msg) {
		r.log.Debug().Int64("sender_id", msg.SenderID).Msg("registry: message after flow finished dropped")
	}
	return true
}

func (r *Registry) open(ctx context.Context, msg telegram.InboundMessage) {
	if r.allowed != nil && !r.allowed(ctx, msg.SenderID) {
		r.log.Warn().Int64("sender_id", msg.SenderID).Msg("registry: start command from unknown sender ignored")
		return
	}
	payload, err := transfer.ParseStartCommand(msg.Text)
	if err != nil {
		r.log.Error().Err(err).Int64("sender_id", msg.SenderID).Msg("registry: bad transfer configuration")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	if r.collectingLocked(msg.SenderID) != nil {
		r.log.Info().Int64("sender_id", msg.SenderID).Uint("task_id", payload.TaskID).Msg("registry: flow already active, start ignored")
		return
	}

	flow := NewFlow(msg.SenderID, payload, r.dedup, r.finalizer, r.cfg)
	r.flows[msg.SenderID] = flow
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := flow.Run(r.ctx); err != nil {
			r.log.Error().Err(err).Int64("sender_id", flow.SenderID()).Msg("registry: flow failed")
		}
		r.mu.Lock()
		if r.flows[flow.SenderID()] == flow {
			delete(r.flows, flow.SenderID())
		}
		r.mu.Unlock()
	}()
}

// collectingLocked returns the sender's flow while it still collects. A flow
// that is only finalizing is detached so the next batch can open its own.
func (r *Registry) collectingLocked(senderID int64) *Flow {
	flow := r.flows[senderID]
	if flow != nil && !flow.Collecting() {
		delete(r.flows, senderID)
		return nil
	}
	return flow
}

// Active returns the number of open flows.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Flow returns the collecting flow of a sender, or nil.
func (r *Registry) Flow(senderID int64) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectingLocked(senderID)
}

// Close ends every flow, finalizing what each collected, and waits.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
