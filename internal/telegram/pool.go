package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/td/tg"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
)

// Handle is a freshly dialed, authorized connection.
type Handle struct {
	API  RawAPI
	Self *tg.User
	Stop func()
}

// Dialer opens an authorized connection for an account.
type Dialer func(ctx context.Context, account *models.SessionAccount) (*Handle, error)

// Accounts is the part of the session pool the client pool needs.
type Accounts interface {
	Get(ctx context.Context, id uint) (*models.SessionAccount, error)
	Update(ctx context.Context, id uint, u repository.SessionUpdate) (*models.SessionAccount, error)
}

// PoolOptions tunes connection retries and per-account rate limits.
type PoolOptions struct {
	MaxAttempts int
	Backoff     time.Duration // attempt n waits n*Backoff before retrying
	RPS         float64
	Burst       int
}

// DefaultPoolOptions returns five attempts with a two second linear backoff.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxAttempts: 5, Backoff: 2 * time.Second, RPS: 2.0, Burst: 1}
}

// Pool keeps one connected Client per session account.
type Pool struct {
	accounts Accounts
	opts     PoolOptions
	log      *logger.Logger

	mu      sync.Mutex
	dial    Dialer
	clients map[uint]*Client
	// newTimer overrides the retry timer; nil uses a real one.
	newTimer func() backoff.Timer
}

// NewPool creates a client pool over the session accounts.
func NewPool(accounts Accounts, dial Dialer, opts PoolOptions) *Pool {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RPS <= 0 {
		opts.RPS, opts.Burst = 2.0, 1
	}
	return &Pool{
		accounts: accounts,
		opts:     opts,
		log:      logger.With("telegram"),
		dial:     dial,
		clients:  make(map[uint]*Client),
	}
}

// SetDialer replaces the connection logic (tests).
func (p *Pool) SetDialer(d Dialer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dial = d
}

// GetClient returns the connected handle of an account, dialing it if needed.
func (p *Pool) GetClient(ctx context.Context, sessionID uint) (*Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[sessionID]; ok {
		if c.Connected() {
			p.mu.Unlock()
			return c, nil
		}
		delete(p.clients, sessionID)
		c.Close()
	}
	dial := p.dial
	p.mu.Unlock()

	account, err := p.accounts.Get(ctx, sessionID)
	if err != nil {
		return nil, &ConnectionError{SessionID: sessionID, Err: err}
	}
	if account == nil || !account.IsActive {
		return nil, &ConnectionError{SessionID: sessionID, Err: ErrSessionInactive}
	}

	var (
		attempts int
		dialErr  error
		timer    backoff.Timer
	)
	if p.newTimer != nil {
		timer = p.newTimer()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.opts.Backoff}, uint64(p.opts.MaxAttempts-1)), ctx)
	handle, err := backoff.RetryNotifyWithTimerAndData(func() (*Handle, error) {
		attempts++
		h, err := dial(ctx, account)
		if err != nil {
			dialErr = err
		}
		return h, err
	}, b, func(err error, next time.Duration) {
		p.log.Warn().Err(err).Uint("session_id", sessionID).Int("attempt", attempts).Dur("retry_in", next).Msg("telegram: connect failed")
	}, timer)
	if err != nil {
		if dialErr != nil && !errors.Is(err, dialErr) {
			// cancelled while waiting to retry
			err = errors.Join(dialErr, err)
		}
		p.log.Warn().Err(err).Uint("session_id", sessionID).Int("attempts", attempts).Msg("telegram: giving up on session")
		return nil, &ConnectionError{SessionID: sessionID, Attempts: attempts, Err: err}
	}

	client := NewClient(sessionID, handle.API, handle.Self, handle.Stop, NewRateLimiter(p.opts.RPS, p.opts.Burst))
	p.recordUserID(ctx, account, handle.Self)

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[sessionID]; ok && existing.Connected() {
		// lost a race with a concurrent dial of the same account
		client.Close()
		return existing, nil
	}
	p.clients[sessionID] = client
	p.log.Info().Uint("session_id", sessionID).Str("name", account.Name).Msg("telegram: session connected")
	return client, nil
}

// recordUserID stores the account's own telegram id the first time it is learned.
func (p *Pool) recordUserID(ctx context.Context, account *models.SessionAccount, self *tg.User) {
	if self == nil || account.UserID == self.ID {
		return
	}
	id := self.ID
	if _, err := p.accounts.Update(ctx, account.ID, repository.SessionUpdate{UserID: &id}); err != nil {
		p.log.Warn().Err(err).Uint("session_id", account.ID).Msg("telegram: failed to record account user id")
	}
}

// Disconnect closes the handle of one account, if any.
func (p *Pool) Disconnect(sessionID uint) {
	p.mu.Lock()
	c, ok := p.clients[sessionID]
	delete(p.clients, sessionID)
	p.mu.Unlock()
	if ok {
		c.Close()
		p.log.Info().Uint("session_id", sessionID).Msg("telegram: session disconnected")
	}
}

// DisconnectAll closes every handle.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[uint]*Client)
	p.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
	if len(clients) > 0 {
		p.log.Info().Int("count", len(clients)).Msg("telegram: all sessions disconnected")
	}
}

// Connected returns the number of open handles.
func (p *Pool) Connected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// linearBackOff waits n*step before the n-th retry.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
