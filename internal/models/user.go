package models

import "time"

// User is a bot user known by telegram id.
type User struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	TelegramID int64           `gorm:"not null;uniqueIndex" json:"telegram_id"`
	Username   string          `gorm:"size:64" json:"username,omitempty"`
	Level      PermissionLevel `gorm:"not null" json:"level"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (User) TableName() string { return "users" }

// All returns every model for AutoMigrate, parents before children.
func All() []any {
	return []any{
		&User{},
		&SessionAccount{},
		&TransferTask{},
		&Collection{},
		&MediaFile{},
	}
}
