package repository

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
)

const (
	tokenLength      = 8
	tokenAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"
	maxTokenAttempts = 10
)

// ErrTokenExhausted is returned when no free token was found.
var ErrTokenExhausted = errors.New("could not generate a unique collection token")

// TokenGenerator returns a candidate public token.
type TokenGenerator func() (string, error)

// RandomToken returns an 8 character url-safe token.
func RandomToken() (string, error) {
	tok, err := gonanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tok, nil
}

// CollectionsRepository stores collections.
type CollectionsRepository struct {
	db     *gorm.DB
	tokens TokenGenerator
	log    *logger.Logger
}

// NewCollectionsRepository creates a collections repository over db.
func NewCollectionsRepository(db *gorm.DB) *CollectionsRepository {
	return &CollectionsRepository{db: db, tokens: RandomToken, log: logger.With("collections")}
}

// WithTokenGenerator overrides token generation (tests).
func (r *CollectionsRepository) WithTokenGenerator(g TokenGenerator) *CollectionsRepository {
	r.tokens = g
	return r
}

// NewCollection holds the fields of a collection to create.
type NewCollection struct {
	Title           string
	Description     *string
	CreatorID       int64
	PermissionLevel models.PermissionLevel
}

// Create stores a collection under a fresh token, retrying on collisions.
func (r *CollectionsRepository) Create(ctx context.Context, in NewCollection) (*models.Collection, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := r.tokens()
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}

		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Collection{}).Where("token = ?", token).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check token: %w", err)
		}
		if count > 0 {
			r.log.Debug().Str("token", token).Int("attempt", attempt+1).Msg("collections: token collision, retrying")
			continue
		}

		c := &models.Collection{
			Token:           token,
			Title:           in.Title,
			Description:     in.Description,
			CreatorID:       in.CreatorID,
			PermissionLevel: in.PermissionLevel,
		}
		if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
		return c, nil
	}
	return nil, ErrTokenExhausted
}

// GetByID returns a collection without its files, or nil.
func (r *CollectionsRepository) GetByID(ctx context.Context, id uint) (*models.Collection, error) {
	var c models.Collection
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get collection: %w", err)
		}
		return nil, nil
	}
	return &c, nil
}

// GetByToken returns a collection with its files in order, or nil.
func (r *CollectionsRepository) GetByToken(ctx context.Context, token string) (*models.Collection, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).
		Preload("MediaFiles", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("token = ?", token).
		First(&c).Error
	if err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get collection by token: %w", err)
		}
		return nil, nil
	}
	return &c, nil
}

// GetByTitle returns the creator's collection with this exact title, or nil.
func (r *CollectionsRepository) GetByTitle(ctx context.Context, title string, creatorID int64) (*models.Collection, error) {
	var c models.Collection
	err := r.db.WithContext(ctx).
		Where("title = ? AND creator_id = ?", title, creatorID).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get collection by title: %w", err)
		}
		return nil, nil
	}
	return &c, nil
}

// List returns one page of collections, newest first, and the total count.
func (r *CollectionsRepository) List(ctx context.Context, page, limit int) ([]models.Collection, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Collection{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count collections: %w", err)
	}
	var out []models.Collection
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list collections: %w", err)
	}
	return out, total, nil
}

// UpdatePermission sets the collection's permission level.
func (r *CollectionsRepository) UpdatePermission(ctx context.Context, id uint, level models.PermissionLevel) error {
	res := r.db.WithContext(ctx).Model(&models.Collection{}).Where("id = ?", id).Update("permission_level", level)
	if res.Error != nil {
		return fmt.Errorf("update collection permission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a collection and every file it owns.
func (r *CollectionsRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&models.MediaFile{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Collection{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
