package bot

import (
	"context"
	"sync"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/telegram"
)

// Handler consumes a message and reports whether it was for it.
type Handler interface {
	Handle(ctx context.Context, msg telegram.InboundMessage) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg telegram.InboundMessage) bool

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg telegram.InboundMessage) bool { return f(ctx, msg) }

// Router hands each message to the protocol handler first, on the update
// goroutine so a sender's messages keep their order, and otherwise to the
// user-facing handler on its own goroutine.
type Router struct {
	protocol Handler
	users    Handler
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRouter creates a router. Either handler may be nil.
func NewRouter(protocol, users Handler) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		protocol: protocol,
		users:    users,
		log:      logger.With("router"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnMessage matches telegram.MessageHandler.
func (r *Router) OnMessage(ctx context.Context, msg telegram.InboundMessage) {
	if r.protocol != nil && r.protocol.Handle(ctx, msg) {
		return
	}
	if r.users == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if !r.users.Handle(r.ctx, msg) {
			r.log.Debug().Int64("sender_id", msg.SenderID).Msg("router: message not handled")
		}
	}()
}

// Close cancels in-flight user requests and waits for them.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
