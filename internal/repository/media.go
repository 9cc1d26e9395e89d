package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 100

// MediaRepository stores media files and answers content-addressed duplicate checks.
type MediaRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewMediaRepository creates a media repository over db.
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db, log: logger.With("media")}
}

// MediaFileInput is one file to store.
type MediaFileInput struct {
	CollectionID    uint
	FileID          string
	UniqueFileID    string
	FileType        models.FileType
	PermissionLevel models.PermissionLevel
	Order           int
}

// AddResult reports what happened to one input of AddMediaFiles.
type AddResult struct {
	Input     MediaFileInput
	Duplicate bool
	File      *models.MediaFile
}

// CheckDuplicate reports whether uniqueFileID is already stored anywhere.
func (r *MediaRepository) CheckDuplicate(ctx context.Context, uniqueFileID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("unique_file_id = ?", uniqueFileID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return count > 0, nil
}

// BatchCheckDuplicates returns the subset of uniqueFileIDs already stored,
// using a single query.
func (r *MediaRepository) BatchCheckDuplicates(ctx context.Context, uniqueFileIDs []string) ([]string, error) {
	if len(uniqueFileIDs) == 0 {
		return nil, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("unique_file_id IN ?", uniqueFileIDs).
		Pluck("unique_file_id", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("batch check duplicates: %w", err)
	}
	return existing, nil
}

// AddMediaFiles inserts every input whose unique id is not stored yet, in one
// bulk operation with skip-on-conflict semantics, and reports per input
// whether it was a duplicate. Repeats within inputs count as duplicates after
// their first occurrence.
func (r *MediaRepository) AddMediaFiles(ctx context.Context, inputs []MediaFileInput) ([]AddResult, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.UniqueFileID
	}

	results := make([]AddResult, len(inputs))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored []string
		if err := tx.Model(&models.MediaFile{}).Where("unique_file_id IN ?", ids).Pluck("unique_file_id", &stored).Error; err != nil {
			return err
		}
		taken := make(map[string]bool, len(stored)+len(inputs))
		for _, id := range stored {
			taken[id] = true
		}

		var rows []models.MediaFile
		var pending []string
		for i, in := range inputs {
			results[i].Input = in
			if taken[in.UniqueFileID] {
				results[i].Duplicate = true
				continue
			}
			taken[in.UniqueFileID] = true
			pending = append(pending, in.UniqueFileID)
			rows = append(rows, models.MediaFile{
				CollectionID:    in.CollectionID,
				FileID:          in.FileID,
				UniqueFileID:    in.UniqueFileID,
				FileType:        in.FileType,
				PermissionLevel: in.PermissionLevel,
				Order:           in.Order,
			})
		}
		if len(rows) == 0 {
			return nil
		}

		// a concurrent writer may have stored the same ids since the check above
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return err
		}

		var persisted []models.MediaFile
		if err := tx.Where("unique_file_id IN ?", pending).Find(&persisted).Error; err != nil {
			return err
		}
		byID := make(map[string]*models.MediaFile, len(persisted))
		for i := range persisted {
			byID[persisted[i].UniqueFileID] = &persisted[i]
		}

		for i := range results {
			res := &results[i]
			if res.Duplicate {
				continue
			}
			row, ok := byID[res.Input.UniqueFileID]
			if !ok {
				return fmt.Errorf("media file %s was not stored (position %d taken in collection %d)",
					res.Input.UniqueFileID, res.Input.Order, res.Input.CollectionID)
			}
			if row.CollectionID != res.Input.CollectionID || row.FileID != res.Input.FileID {
				res.Duplicate = true
				continue
			}
			res.File = row
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add media files: %w", err)
	}
	return results, nil
}

// Get returns a media file by id, or nil.
func (r *MediaRepository) Get(ctx context.Context, id uint) (*models.MediaFile, error) {
	var f models.MediaFile
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("get media file: %w", err)
		}
		return nil, nil
	}
	return &f, nil
}

// ListByCollection returns the collection's files in order.
func (r *MediaRepository) ListByCollection(ctx context.Context, collectionID uint) ([]models.MediaFile, error) {
	var files []models.MediaFile
	err := r.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("position ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list collection media: %w", err)
	}
	return files, nil
}

// MaxOrder returns the highest order in the collection, or -1 when it is empty.
func (r *MediaRepository) MaxOrder(ctx context.Context, collectionID uint) (int, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("collection_id = ?", collectionID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max media order: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// MinPermission returns the most permissive level among the collection's
// files. ok is false when the collection has no files.
func (r *MediaRepository) MinPermission(ctx context.Context, collectionID uint) (models.PermissionLevel, bool, error) {
	var min sql.NullInt64
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("collection_id = ?", collectionID).
		Select("MIN(permission_level)").
		Scan(&min).Error
	if err != nil {
		return 0, false, fmt.Errorf("min media permission: %w", err)
	}
	if !min.Valid {
		return 0, false, nil
	}
	return models.PermissionLevel(min.Int64), true, nil
}

// Delete removes one media file.
func (r *MediaRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.MediaFile{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete media file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
