package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/relaybot/internal/models"
)

// UsersRepository stores bot users and their permission level.
type UsersRepository struct {
	db *gorm.DB
}

// NewUsersRepository creates a users repository over db.
func NewUsersRepository(db *gorm.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// GetByTelegramID returns a user, or nil if unknown.
func (r *UsersRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return nil, nil
	}
	return &u, nil
}

// Touch registers a user at the normal level, or refreshes the username of
// a known one. The level of an existing user is never changed here.
func (r *UsersRepository) Touch(ctx context.Context, telegramID int64, username string) (*models.User, error) {
	u := &models.User{TelegramID: telegramID, Username: username, Level: models.PermissionNormal}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// SetLevel changes a user's permission level.
func (r *UsersRepository) SetLevel(ctx context.Context, telegramID int64, level models.PermissionLevel) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("telegram_id = ?", telegramID).Update("level", level)
	if res.Error != nil {
		return fmt.Errorf("set user level: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
