package telegram

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/blockedby/relaybot/internal/models"
)

// MediaRef is a reusable handle to a photo or document already on telegram's
// servers. Relaying it never re-uploads the bytes.
type MediaRef struct {
	Kind          models.FileType
	ID            int64
	AccessHash    int64
	FileReference []byte
}

// FileID encodes the handle as kind:id:accessHash:base64(fileReference).
func (m MediaRef) FileID() string {
	return fmt.Sprintf("%s:%d:%d:%s", m.Kind, m.ID, m.AccessHash, base64.StdEncoding.EncodeToString(m.FileReference))
}

// UniqueFileID identifies the underlying file. It does not change when the
// message is forwarded, so it is the deduplication key.
func (m MediaRef) UniqueFileID() string {
	return fmt.Sprintf("%s:%d", m.Kind, m.ID)
}

// ParseFileID decodes a handle produced by FileID.
func ParseFileID(fileID string) (MediaRef, error) {
	parts := strings.Split(fileID, ":")
	if len(parts) != 4 {
		return MediaRef{}, fmt.Errorf("parse file id %q: want 4 fields, got %d", fileID, len(parts))
	}
	kind := models.FileType(parts[0])
	if !kind.Valid() {
		return MediaRef{}, fmt.Errorf("parse file id %q: unknown kind", fileID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return MediaRef{}, fmt.Errorf("parse file id %q: %w", fileID, err)
	}
	hash, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return MediaRef{}, fmt.Errorf("parse file id %q: %w", fileID, err)
	}
	ref, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return MediaRef{}, fmt.Errorf("parse file id %q: %w", fileID, err)
	}
	return MediaRef{Kind: kind, ID: id, AccessHash: hash, FileReference: ref}, nil
}

// InputMedia returns the media to attach when sending the handle again.
func (m MediaRef) InputMedia() tg.InputMediaClass {
	if m.Kind == models.FilePhoto {
		return &tg.InputMediaPhoto{ID: &tg.InputPhoto{
			ID:            m.ID,
			AccessHash:    m.AccessHash,
			FileReference: m.FileReference,
		}}
	}
	return &tg.InputMediaDocument{ID: &tg.InputDocument{
		ID:            m.ID,
		AccessHash:    m.AccessHash,
		FileReference: m.FileReference,
	}}
}

// ExtractMedia returns the handle of a message's photo or document, or nil.
func ExtractMedia(m *tg.Message) *MediaRef {
	if m == nil || m.Media == nil {
		return nil
	}
	switch media := m.Media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := media.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		return &MediaRef{
			Kind:          models.FilePhoto,
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
		}
	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &MediaRef{
			Kind:          documentKind(doc),
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}
	}
	return nil
}

func documentKind(doc *tg.Document) models.FileType {
	kind := models.FileDocument
	for _, attr := range doc.Attributes {
		switch attr.(type) {
		case *tg.DocumentAttributeVideo:
			return models.FileVideo
		case *tg.DocumentAttributeAudio:
			kind = models.FileAudio
		}
	}
	return kind
}
