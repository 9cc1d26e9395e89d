package transfer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/database"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/telegram"
)

var day0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func photo(id int, date time.Time, text string) telegram.Message {
	return telegram.Message{ID: id, Date: date, Text: text, Media: &telegram.MediaRef{Kind: models.FilePhoto, ID: int64(id), AccessHash: 1}}
}

func video(id int, date time.Time, text string) telegram.Message {
	return telegram.Message{ID: id, Date: date, Text: text, Media: &telegram.MediaRef{Kind: models.FileVideo, ID: int64(id), AccessHash: 1}}
}

func textOnly(id int, date time.Time, text string) telegram.Message {
	return telegram.Message{ID: id, Date: date, Text: text}
}

// photos returns n photo messages with ids n..1, one hour apart, newest first.
func photos(n int) []telegram.Message {
	out := make([]telegram.Message, 0, n)
	for id := n; id >= 1; id-- {
		out = append(out, photo(id, day0.Add(time.Duration(id)*time.Hour), ""))
	}
	return out
}

// fakeTransport serves a fixed channel history with exclusive offsets.
type fakeTransport struct {
	mu sync.Mutex

	messages   []telegram.Message
	pageSize   int
	resolveErr error
	historyErr func(offset int) error
	forwardErr func(id int) error

	forwarded []int
	sent      []string
	offsets   []int
}

func newFakeTransport(msgs ...telegram.Message) *fakeTransport {
	sorted := append([]telegram.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })
	return &fakeTransport{messages: sorted, pageSize: 2}
}

func (f *fakeTransport) ResolveChannel(_ context.Context, username string) (*telegram.Channel, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &telegram.Channel{ID: 100, AccessHash: 1, Username: username}, nil
}

func (f *fakeTransport) ResolveUser(_ context.Context, username string) (*telegram.Peer, error) {
	return &telegram.Peer{ID: 200, AccessHash: 2, Username: username, Bot: true}, nil
}

func (f *fakeTransport) GetHistory(_ context.Context, _ *telegram.Channel, q telegram.HistoryQuery) ([]telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, q.OffsetID)
	if f.historyErr != nil {
		if err := f.historyErr(q.OffsetID); err != nil {
			return nil, err
		}
	}
	var page []telegram.Message
	for _, m := range f.messages {
		if q.OffsetID > 0 && m.ID >= q.OffsetID {
			continue
		}
		page = append(page, m)
		if len(page) == f.pageSize {
			break
		}
	}
	return page, nil
}

func (f *fakeTransport) ForwardMessage(_ context.Context, _ *telegram.Channel, msgID int, _ *telegram.Peer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		if err := f.forwardErr(msgID); err != nil {
			return err
		}
	}
	f.forwarded = append(f.forwarded, msgID)
	return nil
}

func (f *fakeTransport) SendText(_ context.Context, _ *telegram.Peer, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Forwarded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.forwarded...)
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// sleepRecorder records pacing sleeps without waiting. hook, when set, runs
// before each sleep returns.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	hook   func(n int)
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *sleepRecorder) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

type notice struct {
	userID int64
	text   string
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
	events  []Event
}

func (r *recorder) Notify(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{userID, text})
	return nil
}

func (r *recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) EventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	ledger    *repository.TaskLedger
	pool      *repository.SessionPool
	session   *models.SessionAccount
	transport *fakeTransport
	sleeper   *sleepRecorder
	rec       *recorder
	engine    *Engine
}

func testPolicy() Policy {
	return Policy{
		PerFileDelay:        time.Second,
		ProgressEvery:       0,
		BatchSize:           500,
		FloodWaitMultiplier: 1.2,
	}
}

func newHarness(t *testing.T, policy Policy, msgs ...telegram.Message) *harness {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h := &harness{
		ledger:    repository.NewTaskLedger(db),
		pool:      repository.NewSessionPool(db),
		transport: newFakeTransport(msgs...),
		sleeper:   &sleepRecorder{},
		rec:       &recorder{},
	}
	h.session, err = h.pool.Add(context.Background(), repository.NewSession{Name: "scanner", APIID: 1, APIHash: "h", SessionString: "s"})
	require.NoError(t, err)

	connector := ConnectorFunc(func(context.Context, uint) (Transport, error) { return h.transport, nil })
	h.engine = NewEngine(h.ledger, h.pool, connector, EngineConfig{BotUsername: "@relay_bot", Policy: policy}).
		WithSleep(h.sleeper.Sleep).
		WithNotifier(h.rec).
		WithEvents(h.rec)
	return h
}

func (h *harness) task(t *testing.T, id uint) *models.TransferTask {
	t.Helper()
	task, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task
}

func testPayload() *Payload {
	return &Payload{
		Mode:          ModeAll,
		SourceChannel: "@source",
		ContentType:   []models.FileType{models.FilePhoto, models.FileVideo},
		Title:         "Spring",
		UserID:        42,
	}
}
