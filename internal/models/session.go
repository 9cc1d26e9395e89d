package models

import "time"

// SessionAccount is a secondary telegram account used to drive scanning.
type SessionAccount struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Phone string `gorm:"size:32" json:"phone,omitempty"`

	// UserID is the account's own telegram id, learned on first connect.
	UserID int64 `gorm:"index" json:"user_id,omitempty"`

	APIID         int    `gorm:"not null" json:"api_id"`
	APIHash       string `gorm:"size:64;not null" json:"-"`
	SessionString string `gorm:"type:text;not null" json:"-"`

	IsActive       bool       `gorm:"not null" json:"is_active"`
	IsAvailable    bool       `gorm:"not null" json:"is_available"`
	FloodWaitUntil *time.Time `json:"flood_wait_until,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`

	TotalTransferred int       `gorm:"not null" json:"total_transferred"`
	DailyTransferred int       `gorm:"not null" json:"daily_transferred"`
	LastResetDate    time.Time `gorm:"not null" json:"last_reset_date"`

	// Priority: higher is preferred.
	Priority int `gorm:"not null;index" json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (SessionAccount) TableName() string { return "user_bot_sessions" }

// FloodWaiting reports whether the account is still inside a flood wait at now.
func (s *SessionAccount) FloodWaiting(now time.Time) bool {
	return !s.IsAvailable && s.FloodWaitUntil != nil && now.Before(*s.FloodWaitUntil)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
