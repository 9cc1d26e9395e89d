package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy holds the pacing and batching constants of a transfer.
type Policy struct {
	PerFileDelay        time.Duration `yaml:"per_file_delay" json:"per_file_delay"`
	PauseEvery          int           `yaml:"pause_every" json:"pause_every"`
	ShortPause          time.Duration `yaml:"short_pause" json:"short_pause"`
	LongPauseEvery      int           `yaml:"long_pause_every" json:"long_pause_every"`
	LongPause           time.Duration `yaml:"long_pause" json:"long_pause"`
	ProgressEvery       int           `yaml:"progress_every" json:"progress_every"`
	BatchSize           int           `yaml:"batch_size" json:"batch_size"`
	FloodWaitMultiplier float64       `yaml:"flood_wait_multiplier" json:"flood_wait_multiplier"`
}

// DefaultPolicy is the standard profile.
func DefaultPolicy() Policy {
	return Policy{
		PerFileDelay:        1500 * time.Millisecond,
		PauseEvery:          50,
		ShortPause:          15 * time.Second,
		LongPauseEvery:      150,
		LongPause:           90 * time.Second,
		ProgressEvery:       10,
		BatchSize:           500,
		FloodWaitMultiplier: 1.2,
	}
}

// Validate checks that the policy can drive a scan.
func (p Policy) Validate() error {
	var errs []error
	if p.PerFileDelay < 0 || p.ShortPause < 0 || p.LongPause < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if p.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if p.PauseEvery < 0 || p.LongPauseEvery < 0 || p.ProgressEvery < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	if p.PauseEvery > 0 && p.LongPauseEvery > 0 && p.LongPauseEvery <= p.PauseEvery {
		errs = append(errs, fmt.Errorf("long_pause_every (%d) must exceed pause_every (%d)", p.LongPauseEvery, p.PauseEvery))
	}
	if p.FloodWaitMultiplier < 1 {
		errs = append(errs, errors.New("flood_wait_multiplier must be at least 1"))
	}
	return errors.Join(errs...)
}

// ShouldReportProgress reports whether the nth transfer triggers a progress update.
func (p Policy) ShouldReportProgress(n int) bool {
	return p.ProgressEvery > 0 && n > 0 && n%p.ProgressEvery == 0
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer applies a Policy with an injectable sleep.
type Pacer struct {
	Policy Policy
	Sleep  SleepFunc
}

// NewPacer creates a pacer that really sleeps.
func NewPacer(p Policy) *Pacer {
	return &Pacer{Policy: p, Sleep: Sleep}
}

// PauseAfter returns the throttle pause owed after the nth transfer, on top
// of the per-file delay. The long pause replaces the short one when both apply.
func (p *Pacer) PauseAfter(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	if p.Policy.LongPauseEvery > 0 && n%p.Policy.LongPauseEvery == 0 {
		return p.Policy.LongPause
	}
	if p.Policy.PauseEvery > 0 && n%p.Policy.PauseEvery == 0 {
		return p.Policy.ShortPause
	}
	return 0
}

// AfterTransfer waits the per-file delay and any periodic pause owed after
// the nth transfer of this run.
func (p *Pacer) AfterTransfer(ctx context.Context, n int) error {
	if p.Policy.PerFileDelay > 0 {
		if err := p.Sleep(ctx, p.Policy.PerFileDelay); err != nil {
			return err
		}
	}
	if pause := p.PauseAfter(n); pause > 0 {
		return p.Sleep(ctx, pause)
	}
	return nil
}

// FloodBackoff returns how long to wait before resuming after a flood wait of seconds.
func (p *Pacer) FloodBackoff(seconds int) time.Duration {
	mult := p.Policy.FloodWaitMultiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(math.Ceil(float64(seconds)*mult)) * time.Second
}
