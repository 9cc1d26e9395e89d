package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
)

// SessionPool tracks secondary accounts used for scanning and hands out the
// best available one.
type SessionPool struct {
	db         *gorm.DB
	now        Clock
	dailyLimit int
	log        *logger.Logger
}

// NewSessionPool creates a session pool over db.
func NewSessionPool(db *gorm.DB) *SessionPool {
	return &SessionPool{
		db:  db,
		now: utcNow,
		log: logger.With("sessionpool"),
	}
}

// WithClock overrides the clock (tests).
func (p *SessionPool) WithClock(now Clock) *SessionPool {
	p.now = func() time.Time { return now().UTC() }
	return p
}

// WithDailyLimit makes Acquire skip accounts that already transferred n files
// today. Zero disables the limit.
func (p *SessionPool) WithDailyLimit(n int) *SessionPool {
	p.dailyLimit = n
	return p
}

// NewSession holds the fields an administrator supplies when onboarding an account.
type NewSession struct {
	Name          string
	Phone         string
	UserID        int64
	APIID         int
	APIHash       string
	SessionString string
	Priority      int
}

// SessionUpdate holds optional field changes; nil fields are left alone.
type SessionUpdate struct {
	Name          *string
	Priority      *int
	SessionString *string
	UserID        *int64
}

// SessionStats summarises pool capacity.
type SessionStats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Available    int64 `json:"available"`
	FloodWaiting int64 `json:"flood_waiting"`
}

// resetElapsed restores accounts whose flood wait has passed.
func (p *SessionPool) resetElapsed(tx *gorm.DB, now time.Time) error {
	res := tx.Model(&models.SessionAccount{}).
		Where("is_available = ? AND flood_wait_until IS NOT NULL AND flood_wait_until <= ?", false, now).
		Updates(map[string]any{"is_available": true, "flood_wait_until": nil})
	if res.Error != nil {
		return fmt.Errorf("reset elapsed flood waits: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		p.log.Info().Int64("count", res.RowsAffected).Msg("sessionpool: flood waits elapsed, accounts available again")
	}
	return nil
}

func selectionOrder(q *gorm.DB) *gorm.DB {
	// never-used accounts count as least recently used
	return q.Order("priority DESC").
		Order("last_used_at IS NOT NULL").
		Order("last_used_at ASC").
		Order("id ASC")
}

// SelectAvailable resets elapsed flood waits, then returns the highest
// priority, least recently used active and available account.
// It returns nil, nil when no account qualifies.
func (p *SessionPool) SelectAvailable(ctx context.Context) (*models.SessionAccount, error) {
	var picked *models.SessionAccount
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.resetElapsed(tx, p.now()); err != nil {
			return err
		}
		var acc models.SessionAccount
		err := selectionOrder(tx.Where("is_active = ? AND is_available = ?", true, true)).
			First(&acc).Error
		if err != nil {
			return notFoundAsNil(err)
		}
		picked = &acc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select available session: %w", err)
	}
	return picked, nil
}

// Acquire selects an account like SelectAvailable and stamps it as used in
// the same transaction, so two concurrent callers never claim the same row.
// Accounts listed in exclude and accounts at their daily limit are skipped.
func (p *SessionPool) Acquire(ctx context.Context, exclude []uint) (*models.SessionAccount, error) {
	var picked *models.SessionAccount
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := p.now()
		if err := p.resetElapsed(tx, now); err != nil {
			return err
		}

		q := tx.Where("is_active = ? AND is_available = ?", true, true)
		if len(exclude) > 0 {
			q = q.Where("id NOT IN ?", exclude)
		}
		var candidates []models.SessionAccount
		if err := forUpdate(selectionOrder(q), true).Find(&candidates).Error; err != nil {
			return err
		}

		for i := range candidates {
			c := &candidates[i]
			if p.dailyLimit > 0 && models.SameDay(c.LastResetDate, now) && c.DailyTransferred >= p.dailyLimit {
				continue
			}
			if err := tx.Model(c).Update("last_used_at", now).Error; err != nil {
				return err
			}
			c.LastUsedAt = &now
			picked = c
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	if picked != nil {
		p.log.Debug().Uint("session_id", picked.ID).Str("name", picked.Name).Msg("sessionpool: session acquired")
	}
	return picked, nil
}

const minFloodWaitSeconds = 1

// MarkInUse stamps lastUsedAt with the current time.
func (p *SessionPool) MarkInUse(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).Model(&models.SessionAccount{}).
		Where("id = ?", id).
		Update("last_used_at", p.now())
	if res.Error != nil {
		return fmt.Errorf("mark session in use: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFloodWait makes the account unavailable until now + waitSeconds. The
// wait is at least one second so the deadline always lies ahead.
func (p *SessionPool) MarkFloodWait(ctx context.Context, id uint, waitSeconds int) error {
	waitSeconds = max(waitSeconds, minFloodWaitSeconds)
	until := p.now().Add(time.Duration(waitSeconds) * time.Second)
	res := p.db.WithContext(ctx).Model(&models.SessionAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_available": false, "flood_wait_until": until})
	if res.Error != nil {
		return fmt.Errorf("mark session flood wait: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	p.log.Warn().Uint("session_id", id).Int("wait_seconds", waitSeconds).Time("until", until).Msg("sessionpool: account flood-limited")
	return nil
}

// IncrementTransfer adds count to the account's counters. The daily counter
// restarts at count when the stored reset date is a different calendar day.
func (p *SessionPool) IncrementTransfer(ctx context.Context, id uint, count int) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc models.SessionAccount
		if err := forUpdate(tx, false).First(&acc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		now := p.now()
		updates := map[string]any{"total_transferred": acc.TotalTransferred + count}
		if models.SameDay(acc.LastResetDate, now) {
			updates["daily_transferred"] = acc.DailyTransferred + count
		} else {
			updates["daily_transferred"] = count
			updates["last_reset_date"] = now
		}
		return tx.Model(&acc).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("increment session transfer: %w", err)
	}
	return nil
}

// Add creates an active, available account.
func (p *SessionPool) Add(ctx context.Context, in NewSession) (*models.SessionAccount, error) {
	acc := &models.SessionAccount{
		Name:          in.Name,
		Phone:         in.Phone,
		UserID:        in.UserID,
		APIID:         in.APIID,
		APIHash:       in.APIHash,
		SessionString: in.SessionString,
		Priority:      in.Priority,
		IsActive:      true,
		IsAvailable:   true,
		LastResetDate: p.now(),
	}
	if err := p.db.WithContext(ctx).Create(acc).Error; err != nil {
		return nil, fmt.Errorf("add session: %w", err)
	}
	p.log.Info().Uint("session_id", acc.ID).Str("name", acc.Name).Msg("sessionpool: session added")
	return acc, nil
}

// Get returns an account by id, or nil if it does not exist.
func (p *SessionPool) Get(ctx context.Context, id uint) (*models.SessionAccount, error) {
	var acc models.SessionAccount
	if err := p.db.WithContext(ctx).First(&acc, id).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		return nil, nil
	}
	return &acc, nil
}

// GetByUserID returns the account whose telegram id is userID, or nil.
func (p *SessionPool) GetByUserID(ctx context.Context, userID int64) (*models.SessionAccount, error) {
	var acc models.SessionAccount
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get session by user id: %w", err)
		}
		return nil, nil
	}
	return &acc, nil
}

// List returns all accounts in selection-priority order.
func (p *SessionPool) List(ctx context.Context) ([]models.SessionAccount, error) {
	var out []models.SessionAccount
	if err := p.db.WithContext(ctx).Order("priority DESC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of u.
func (p *SessionPool) Update(ctx context.Context, id uint, u SessionUpdate) (*models.SessionAccount, error) {
	updates := map[string]any{}
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Priority != nil {
		updates["priority"] = *u.Priority
	}
	if u.SessionString != nil {
		updates["session_string"] = *u.SessionString
	}
	if u.UserID != nil {
		updates["user_id"] = *u.UserID
	}
	if len(updates) > 0 {
		res := p.db.WithContext(ctx).Model(&models.SessionAccount{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	acc, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrNotFound
	}
	return acc, nil
}

// Delete removes an account. In-flight tasks keep their handle; they simply
// cannot acquire this account again.
func (p *SessionPool) Delete(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).Delete(&models.SessionAccount{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	p.log.Info().Uint("session_id", id).Msg("sessionpool: session deleted")
	return nil
}

// Toggle flips the administrator enable flag and returns the updated account.
func (p *SessionPool) Toggle(ctx context.Context, id uint) (*models.SessionAccount, error) {
	var acc models.SessionAccount
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx, false).First(&acc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		acc.IsActive = !acc.IsActive
		return tx.Model(&acc).Update("is_active", acc.IsActive).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("toggle session: %w", err)
	}
	return &acc, nil
}

// ResetFloodWait makes the account available immediately.
func (p *SessionPool) ResetFloodWait(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).Model(&models.SessionAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_available": true, "flood_wait_until": nil})
	if res.Error != nil {
		return fmt.Errorf("reset session flood wait: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns pool capacity counters.
func (p *SessionPool) Stats(ctx context.Context) (SessionStats, error) {
	var all []models.SessionAccount
	if err := p.db.WithContext(ctx).Find(&all).Error; err != nil {
		return SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	now := p.now()
	stats := SessionStats{Total: int64(len(all))}
	for i := range all {
		acc := &all[i]
		if acc.IsActive {
			stats.Active++
			if acc.IsAvailable {
				stats.Available++
			}
		}
		if acc.FloodWaiting(now) {
			stats.FloodWaiting++
		}
	}
	return stats, nil
}
