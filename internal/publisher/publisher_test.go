package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/telegram"
	"github.com/blockedby/relaybot/internal/transfer"
)

type mockNATSClient struct {
	subject string
	data    []byte
	err     error
}

func (m *mockNATSClient) Publish(_ context.Context, subject string, data any) error {
	m.subject = subject
	m.data, _ = json.Marshal(data)
	return m.err
}

func TestEventPublisher_Emit(t *testing.T) {
	mock := &mockNATSClient{}
	pub := NewEventPublisher(mock)

	ev := transfer.NewEvent(transfer.EventTaskPaused)
	ev.TaskID = 9
	ev.Reason = string(models.PauseFloodWait)
	ev.WaitSeconds = 30
	pub.Emit(context.Background(), ev)

	assert.Equal(t, "relay.task.paused", mock.subject)
	var got transfer.Event
	require.NoError(t, json.Unmarshal(mock.data, &got))
	assert.Equal(t, uint(9), got.TaskID)
	assert.Equal(t, 30, got.WaitSeconds)
	assert.Equal(t, ev.ID, got.ID)
}

func TestEventPublisher_ErrorSwallowed(t *testing.T) {
	mock := &mockNATSClient{err: errors.New("no responders")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		NewEventPublisher(mock).Emit(ctx, transfer.NewEvent(transfer.EventTaskFailed))
	})
	assert.Equal(t, "relay.task.failed", mock.subject)
}

type sent struct {
	peer    tg.InputPeerClass
	media   []telegram.MediaRef
	caption string
}

type fakeSender struct {
	resolved   []string
	resolveErr error
	sendErr    error
	sent       []sent
}

func (f *fakeSender) ResolveChannel(_ context.Context, username string) (tg.InputPeerClass, error) {
	f.resolved = append(f.resolved, username)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	id := int64(1)
	if username == "vault" {
		id = 2
	}
	return &tg.InputPeerChannel{ChannelID: id, AccessHash: 5}, nil
}

func (f *fakeSender) SendMedia(_ context.Context, peer tg.InputPeerClass, media []telegram.MediaRef, caption string) error {
	f.sent = append(f.sent, sent{peer, media, caption})
	return f.sendErr
}

func file(kind models.FileType, id int64, level models.PermissionLevel) models.MediaFile {
	ref := telegram.MediaRef{Kind: kind, ID: id, AccessHash: 3, FileReference: []byte{7}}
	return models.MediaFile{
		FileID:          ref.FileID(),
		UniqueFileID:    ref.UniqueFileID(),
		FileType:        kind,
		PermissionLevel: level,
	}
}

func newChannelPublisher(s *fakeSender) *ChannelPublisher {
	return NewChannelPublisher(s, "@showcase", "https://t.me/vault").WithRand(rand.New(rand.NewPCG(1, 2)))
}

func TestPublicSample(t *testing.T) {
	p := newChannelPublisher(&fakeSender{})

	t.Run("single free file", func(t *testing.T) {
		got := p.PublicSample([]models.MediaFile{
			file(models.FilePhoto, 1, models.PermissionNormal),
			file(models.FilePhoto, 2, models.PermissionVIP),
		})
		require.Len(t, got, 1)
		assert.Equal(t, "photo:1", got[0].UniqueFileID)
	})

	t.Run("photos only", func(t *testing.T) {
		got := p.PublicSample([]models.MediaFile{
			file(models.FilePhoto, 1, models.PermissionNormal),
			file(models.FilePhoto, 2, models.PermissionNormal),
			file(models.FilePhoto, 3, models.PermissionNormal),
		})
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0].UniqueFileID, got[1].UniqueFileID)
	})

	t.Run("mixed picks one of each", func(t *testing.T) {
		got := p.PublicSample([]models.MediaFile{
			file(models.FilePhoto, 1, models.PermissionNormal),
			file(models.FilePhoto, 2, models.PermissionNormal),
			file(models.FileVideo, 3, models.PermissionNormal),
			file(models.FileVideo, 4, models.PermissionPaid),
		})
		require.Len(t, got, 2)
		assert.Equal(t, models.FilePhoto, got[0].FileType)
		assert.Equal(t, "video:3", got[1].UniqueFileID)
	})

	t.Run("nothing free", func(t *testing.T) {
		assert.Empty(t, p.PublicSample([]models.MediaFile{file(models.FileVideo, 1, models.PermissionPaid)}))
	})

	t.Run("documents are never sampled", func(t *testing.T) {
		assert.Empty(t, p.PublicSample([]models.MediaFile{file(models.FileDocument, 1, models.PermissionNormal)}))
	})
}

func TestChannelPublisher_Publish(t *testing.T) {
	s := &fakeSender{}
	p := newChannelPublisher(s)

	files := []models.MediaFile{
		file(models.FilePhoto, 1, models.PermissionNormal),
		file(models.FileVideo, 2, models.PermissionPaid),
		file(models.FileDocument, 3, models.PermissionNormal),
	}
	require.NoError(t, p.Publish(context.Background(), files, "Spring"))
	require.NoError(t, p.Publish(context.Background(), files, "Spring again"))

	assert.Equal(t, []string{"showcase", "vault"}, s.resolved, "channels are resolved once")
	require.Len(t, s.sent, 4)

	assert.Len(t, s.sent[0].media, 1, "public gets the only free photo")
	assert.Equal(t, int64(1), s.sent[0].media[0].ID)
	assert.Equal(t, "Spring", s.sent[0].caption)

	assert.Len(t, s.sent[1].media, 2, "private gets every photo and video")
	assert.Equal(t, int64(2), s.sent[1].peer.(*tg.InputPeerChannel).ChannelID)
}

func TestChannelPublisher_ErrorsSwallowed(t *testing.T) {
	s := &fakeSender{resolveErr: errors.New("CHANNEL_PRIVATE")}
	p := newChannelPublisher(s)
	assert.NoError(t, p.Publish(context.Background(), []models.MediaFile{file(models.FilePhoto, 1, models.PermissionNormal)}, ""))
	assert.Empty(t, s.sent)

	s = &fakeSender{sendErr: errors.New("CHAT_WRITE_FORBIDDEN")}
	p = newChannelPublisher(s)
	assert.NoError(t, p.Publish(context.Background(), []models.MediaFile{file(models.FilePhoto, 1, models.PermissionNormal)}, ""))
	assert.Len(t, s.sent, 2)
}

func TestChannelPublisher_UnsetChannels(t *testing.T) {
	s := &fakeSender{}
	p := NewChannelPublisher(s, "", "")
	require.NoError(t, p.Publish(context.Background(), []models.MediaFile{file(models.FilePhoto, 1, models.PermissionNormal)}, ""))
	assert.Empty(t, s.resolved)
}

func TestMediaRefs(t *testing.T) {
	refs, err := MediaRefs([]models.MediaFile{file(models.FileVideo, 8, models.PermissionNormal), {FileID: "garbage"}})
	require.Error(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, models.FileVideo, refs[0].Kind)
}
