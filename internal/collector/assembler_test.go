package collector

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/transfer"
)

type assemblerHarness struct {
	collections *repository.CollectionsRepository
	media       *repository.MediaRepository
	rec         *recorder
	pub         *capturePublisher
	asm         *Assembler
}

type capturePublisher struct {
	files   []models.MediaFile
	caption string
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, files []models.MediaFile, caption string) error {
	p.files = append(p.files, files...)
	p.caption = caption
	return p.err
}

func newAssemblerHarness(t *testing.T) *assemblerHarness {
	t.Helper()
	db := newTestDB(t)
	n := 0
	h := &assemblerHarness{
		collections: repository.NewCollectionsRepository(db).WithTokenGenerator(func() (string, error) {
			n++
			return "tok" + strconv.Itoa(n), nil
		}),
		media: repository.NewMediaRepository(db),
		rec:   &recorder{},
		pub:   &capturePublisher{},
	}
	h.asm = NewAssembler(h.collections, h.media, h.rec, "@relay_bot").WithEvents(h.rec).WithPublisher(h.pub)
	return h
}

func items(kind models.FileType, ids ...int64) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		m := mediaMsg(kind, id).Media
		out[i] = Item{FileID: m.FileID(), UniqueFileID: m.UniqueFileID(), Kind: kind, MessageID: int(id)}
	}
	return out
}

func TestAssembler_CreatesCollection(t *testing.T) {
	h := newAssemblerHarness(t)
	ctx := context.Background()
	p := testPayload()

	in := append(items(models.FilePhoto, 1, 2), items(models.FileVideo, 3)...)
	require.NoError(t, h.asm.Finalize(ctx, p, in, Summary{Received: 4, Duplicates: 1}))

	coll, err := h.collections.GetByTitle(ctx, "Spring", 42)
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, "tok1", coll.Token)
	assert.Equal(t, models.PermissionPaid, coll.PermissionLevel)

	files, err := h.media.ListByCollection(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, i, f.Order)
		assert.Equal(t, models.PermissionPaid, f.PermissionLevel)
	}

	notices := h.rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, int64(42), notices[0].userID)
	assert.Contains(t, notices[0].text, `Collection "Spring" created`)
	assert.Contains(t, notices[0].text, "Photos: 2\nVideos: 1")
	assert.Contains(t, notices[0].text, "Duplicates skipped: 1")
	assert.Contains(t, notices[0].text, "https://t.me/relay_bot?start=tok1")

	events := h.rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, transfer.EventCollectionPublished, events[0].Type)
	assert.Equal(t, 3, events[0].Added)
	assert.Equal(t, "tok1", events[0].CollectionToken)

	assert.Len(t, h.pub.files, 3)
	assert.Contains(t, h.pub.caption, "https://t.me/relay_bot?start=tok1")
}

func TestAssembler_AppendsToExistingTitle(t *testing.T) {
	h := newAssemblerHarness(t)
	ctx := context.Background()

	first := testPayload()
	first.PermissionLevel = models.PermissionVIP
	require.NoError(t, h.asm.Finalize(ctx, first, items(models.FilePhoto, 1, 2), Summary{}))

	second := testPayload()
	second.PermissionLevel = models.PermissionNormal
	require.NoError(t, h.asm.Finalize(ctx, second, items(models.FilePhoto, 3, 1), Summary{}))

	coll, err := h.collections.GetByTitle(ctx, "Spring", 42)
	require.NoError(t, err)
	assert.Equal(t, "tok1", coll.Token, "the same collection keeps its link")
	assert.Equal(t, models.PermissionNormal, coll.PermissionLevel, "the collection opens up to its most permissive file")

	files, err := h.media.ListByCollection(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "photo:3", files[2].UniqueFileID)
	assert.Equal(t, 2, files[2].Order)

	notices := h.rec.Notices()
	require.Len(t, notices, 2)
	assert.Contains(t, notices[1].text, "updated")
	assert.Contains(t, notices[1].text, "Duplicates skipped: 1")
}

func TestAssembler_OtherOwnerGetsOwnCollection(t *testing.T) {
	h := newAssemblerHarness(t)
	ctx := context.Background()

	require.NoError(t, h.asm.Finalize(ctx, testPayload(), items(models.FilePhoto, 1), Summary{}))
	other := testPayload()
	other.UserID = 43
	require.NoError(t, h.asm.Finalize(ctx, other, items(models.FilePhoto, 2), Summary{}))

	coll, err := h.collections.GetByTitle(ctx, "Spring", 43)
	require.NoError(t, err)
	assert.Equal(t, "tok2", coll.Token)
}

func TestAssembler_NothingCollected(t *testing.T) {
	h := newAssemblerHarness(t)

	require.NoError(t, h.asm.Finalize(context.Background(), testPayload(), nil, Summary{Duplicates: 3, TimedOut: true}))

	coll, err := h.collections.GetByTitle(context.Background(), "Spring", 42)
	require.NoError(t, err)
	assert.Nil(t, coll)

	notices := h.rec.Notices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].text, "nothing new collected (3 duplicates skipped)")
	assert.Contains(t, notices[0].text, "timed out")
	assert.Empty(t, h.rec.Events())
}

func TestAssembler_TimedOutNote(t *testing.T) {
	h := newAssemblerHarness(t)
	require.NoError(t, h.asm.Finalize(context.Background(), testPayload(), items(models.FileVideo, 5), Summary{TimedOut: true}))
	assert.Contains(t, h.rec.Notices()[0].text, "partial result")
}

func TestAssembler_PublishFailureIsNotFatal(t *testing.T) {
	h := newAssemblerHarness(t)
	h.pub.err = errors.New("channel gone")
	assert.NoError(t, h.asm.Finalize(context.Background(), testPayload(), items(models.FilePhoto, 1), Summary{}))
}

type brokenCollections struct{ Collections }

func (brokenCollections) GetByTitle(context.Context, string, int64) (*models.Collection, error) {
	return nil, errors.New("database is locked")
}

func TestAssembler_StorageErrorNotifies(t *testing.T) {
	h := newAssemblerHarness(t)
	rec := &recorder{}
	asm := NewAssembler(brokenCollections{}, h.media, rec, "relay_bot")

	err := asm.Finalize(context.Background(), testPayload(), items(models.FilePhoto, 1), Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.Len(t, rec.Notices(), 1)
	assert.Contains(t, rec.Notices()[0].text, `Saving "Spring" failed`)
}

// Items relayed by a scanner end up stored once each, with duplicates of
// earlier collections filtered out in bulk.
func TestCollector_EndToEnd(t *testing.T) {
	h := newAssemblerHarness(t)
	ctx := context.Background()

	old := testPayload()
	old.Title = "Archive"
	var seed []int64
	for id := int64(1); id <= 20; id++ {
		seed = append(seed, id*7)
	}
	require.NoError(t, h.asm.Finalize(ctx, old, items(models.FilePhoto, seed...), Summary{}))

	dedup := &countingDeduper{next: h.media}
	reg := NewRegistry(dedup, h.asm, FlowConfig{Inbox: 200}, nil)
	defer reg.Close()

	require.True(t, reg.Handle(ctx, startMsg(t, testPayload())))
	flow := reg.Flow(scanner)
	require.NotNil(t, flow)
	for id := int64(1); id <= 150; id++ {
		reg.Handle(ctx, mediaMsg(models.FilePhoto, id))
	}
	reg.Handle(ctx, completeMsg())
	<-flow.Done()

	coll, err := h.collections.GetByTitle(ctx, "Spring", 42)
	require.NoError(t, err)
	require.NotNil(t, coll)
	files, err := h.media.ListByCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Len(t, files, 130)
	assert.Equal(t, 2, dedup.Calls())

	last := h.rec.Notices()[len(h.rec.Notices())-1]
	assert.Contains(t, last.text, "Photos: 130")
	assert.Contains(t, last.text, "Duplicates skipped: 20")
}
