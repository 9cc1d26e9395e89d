package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/blockedby/relaybot/internal/logger"
)

// Cleaner deletes finished tasks past their retention.
type Cleaner interface {
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)
}

// Janitor periodically removes completed and failed tasks.
type Janitor struct {
	cleaner       Cleaner
	retentionDays int
	interval      time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Logger
}

// NewJanitor creates a janitor that cleans every interval.
func NewJanitor(cleaner Cleaner, retentionDays int, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      interval,
		log:           logger.With("janitor"),
	}
}

// RunOnce performs one cleanup pass.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.cleaner.CleanupOld(ctx, j.retentionDays)
	if err != nil {
		j.log.Error().Err(err).Msg("janitor: cleanup failed")
		return 0, err
	}
	j.log.Debug().Int64("deleted", n).Msg("janitor: cleanup done")
	return n, nil
}

// Start runs a pass now and then on every tick until Stop. Calling Start
// twice has no effect.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		_, _ = j.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = j.RunOnce(ctx)
			}
		}
	}(j.done)
}

// Stop ends the loop and waits for it.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
