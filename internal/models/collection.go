package models

import "time"

// FileType is the media kind of a stored file.
type FileType string

// FileType constants.
const (
	FilePhoto    FileType = "photo"
	FileVideo    FileType = "video"
	FileDocument FileType = "document"
	FileAudio    FileType = "audio"
)

// Valid reports whether t is a known media kind.
func (t FileType) Valid() bool {
	switch t {
	case FilePhoto, FileVideo, FileDocument, FileAudio:
		return true
	}
	return false
}

// Collection is a named, permission-tagged set of media files reachable by a deep link token.
type Collection struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Token           string          `gorm:"size:16;not null;uniqueIndex" json:"token"`
	Title           string          `gorm:"size:255;not null;index:idx_collections_title_creator,priority:1" json:"title"`
	Description     *string         `gorm:"type:text" json:"description,omitempty"`
	CreatorID       int64           `gorm:"not null;index:idx_collections_title_creator,priority:2" json:"creator_id"`
	PermissionLevel PermissionLevel `gorm:"not null" json:"permission_level"`
	MediaFiles      []MediaFile     `gorm:"constraint:OnDelete:CASCADE;" json:"media_files,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (Collection) TableName() string { return "collections" }

// MediaFile is one stored file. UniqueFileID is unique across the whole table.
type MediaFile struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CollectionID    uint            `gorm:"not null;uniqueIndex:idx_media_files_collection_position,priority:1" json:"collection_id"`
	FileID          string          `gorm:"type:text;not null" json:"file_id"`
	UniqueFileID    string          `gorm:"size:255;not null;uniqueIndex" json:"unique_file_id"`
	FileType        FileType        `gorm:"size:16;not null" json:"file_type"`
	PermissionLevel PermissionLevel `gorm:"not null" json:"permission_level"`
	Order           int             `gorm:"column:position;not null;uniqueIndex:idx_media_files_collection_position,priority:2" json:"order"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName overrides the gorm table name.
func (MediaFile) TableName() string { return "media_files" }
