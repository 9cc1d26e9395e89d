package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/relaybot/internal/database"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/telegram"
	"github.com/blockedby/relaybot/internal/transfer"
)

const scanner int64 = 7001

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func mediaMsg(kind models.FileType, id int64) telegram.InboundMessage {
	return telegram.InboundMessage{
		SenderID:  scanner,
		MessageID: int(id),
		Media:     &telegram.MediaRef{Kind: kind, ID: id, AccessHash: 9, FileReference: []byte{1}},
	}
}

func textMsg(text string) telegram.InboundMessage {
	return telegram.InboundMessage{SenderID: scanner, Text: text}
}

func completeMsg() telegram.InboundMessage {
	return textMsg(transfer.CompleteCommand)
}

func startMsg(t *testing.T, p *transfer.Payload) telegram.InboundMessage {
	t.Helper()
	text, err := transfer.EncodeStartCommand(p)
	require.NoError(t, err)
	return textMsg(text)
}

func testPayload() *transfer.Payload {
	return &transfer.Payload{
		Mode:            transfer.ModeAll,
		SourceChannel:   "source",
		ContentType:     []models.FileType{models.FilePhoto, models.FileVideo},
		Title:           "Spring",
		UserID:          42,
		TaskID:          3,
		PermissionLevel: models.PermissionPaid,
	}
}

// countingDeduper counts bulk checks and answers from a fixed stored set,
// or from next when set.
type countingDeduper struct {
	mu     sync.Mutex
	stored map[string]bool
	next   Deduper
	err    error
	calls  int
	sizes  []int
}

func (d *countingDeduper) BatchCheckDuplicates(ctx context.Context, ids []string) ([]string, error) {
	d.mu.Lock()
	d.calls++
	d.sizes = append(d.sizes, len(ids))
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if d.next != nil {
		return d.next.BatchCheckDuplicates(ctx, ids)
	}
	var out []string
	for _, id := range ids {
		if d.stored[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *countingDeduper) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type finalized struct {
	payload *transfer.Payload
	items   []Item
	sum     Summary
}

// captureFinalizer records finalizations. When hold is set, the first
// Finalize waits on it before recording.
type captureFinalizer struct {
	mu   sync.Mutex
	runs []finalized
	err  error

	hold    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (c *captureFinalizer) Finalize(_ context.Context, p *transfer.Payload, items []Item, sum Summary) error {
	if c.hold != nil {
		first := false
		c.once.Do(func() { first = true })
		if first {
			close(c.entered)
			<-c.hold
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, finalized{p, append([]Item(nil), items...), sum})
	return c.err
}

func (c *captureFinalizer) Runs() []finalized {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]finalized(nil), c.runs...)
}

type notice struct {
	userID int64
	text   string
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
	events  []transfer.Event
}

func (r *recorder) Notify(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{userID, text})
	return nil
}

func (r *recorder) Emit(_ context.Context, ev transfer.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Notices() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.notices...)
}

func (r *recorder) Events() []transfer.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer.Event(nil), r.events...)
}

// runFlow starts f and returns a function that waits for it.
func runFlow(t *testing.T, ctx context.Context, f *Flow) func() error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()
	return func() error {
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("flow did not finish")
			return nil
		}
	}
}
