package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func documentMessage(attrs ...tg.DocumentAttributeClass) *tg.Message {
	return &tg.Message{ID: 1, Media: &tg.MessageMediaDocument{
		Document: &tg.Document{ID: 77, AccessHash: 5, FileReference: []byte{9}, Attributes: attrs},
	}}
}

func TestExtractMedia(t *testing.T) {
	t.Run("photo", func(t *testing.T) {
		msg := &tg.Message{ID: 1, Media: &tg.MessageMediaPhoto{
			Photo: &tg.Photo{ID: 11, AccessHash: 22, FileReference: []byte("ref")},
		}}
		ref := ExtractMedia(msg)
		require.NotNil(t, ref)
		assert.Equal(t, models.FilePhoto, ref.Kind)
		assert.Equal(t, "photo:11", ref.UniqueFileID())
	})

	t.Run("video attribute wins over audio", func(t *testing.T) {
		ref := ExtractMedia(documentMessage(&tg.DocumentAttributeAudio{}, &tg.DocumentAttributeVideo{}))
		require.NotNil(t, ref)
		assert.Equal(t, models.FileVideo, ref.Kind)
	})

	t.Run("audio", func(t *testing.T) {
		ref := ExtractMedia(documentMessage(&tg.DocumentAttributeAudio{}, &tg.DocumentAttributeFilename{FileName: "a.mp3"}))
		require.NotNil(t, ref)
		assert.Equal(t, models.FileAudio, ref.Kind)
	})

	t.Run("plain document", func(t *testing.T) {
		ref := ExtractMedia(documentMessage(&tg.DocumentAttributeFilename{FileName: "a.pdf"}))
		require.NotNil(t, ref)
		assert.Equal(t, models.FileDocument, ref.Kind)
	})

	t.Run("no media", func(t *testing.T) {
		assert.Nil(t, ExtractMedia(&tg.Message{ID: 1, Message: "hello"}))
		assert.Nil(t, ExtractMedia(&tg.Message{ID: 1, Media: &tg.MessageMediaPhoto{Photo: &tg.PhotoEmpty{ID: 1}}}))
		assert.Nil(t, ExtractMedia(nil))
	})
}

func TestFileID_RoundTrip(t *testing.T) {
	ref := MediaRef{Kind: models.FileVideo, ID: 123, AccessHash: -456, FileReference: []byte{0, 1, 2, 250}}

	parsed, err := ParseFileID(ref.FileID())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)
	assert.Equal(t, "video:123", parsed.UniqueFileID())

	doc, ok := parsed.InputMedia().(*tg.InputMediaDocument)
	require.True(t, ok)
	assert.Equal(t, &tg.InputDocument{ID: 123, AccessHash: -456, FileReference: []byte{0, 1, 2, 250}}, doc.ID)
}

func TestParseFileID_Invalid(t *testing.T) {
	for _, in := range []string{"", "photo:1:2", "sticker:1:2:AA==", "photo:x:2:AA==", "photo:1:2:!!"} {
		_, err := ParseFileID(in)
		assert.Error(t, err, in)
	}
}
