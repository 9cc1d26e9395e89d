package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published while tasks run and collections are assembled.
const (
	EventTaskStarted         = "task.started"
	EventTaskProgress        = "task.progress"
	EventTaskPaused          = "task.paused"
	EventTaskCompleted       = "task.completed"
	EventTaskFailed          = "task.failed"
	EventCollectionPublished = "collection.published"
)

// Event is a lifecycle notification for observers outside the engine.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Type   string    `json:"type"`
	TaskID uint      `json:"task_id,omitempty"`
	RunID  uuid.UUID `json:"run_id,omitempty"`
	At     time.Time `json:"at"`

	Scanned     int    `json:"scanned,omitempty"`
	Matched     int    `json:"matched,omitempty"`
	Transferred int    `json:"transferred,omitempty"`
	Reason      string `json:"reason,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
	Error       string `json:"error,omitempty"`

	CollectionID    uint   `json:"collection_id,omitempty"`
	CollectionToken string `json:"collection_token,omitempty"`
	Title           string `json:"title,omitempty"`
	Added           int    `json:"added,omitempty"`
	Duplicates      int    `json:"duplicates,omitempty"`
}

// NewEvent stamps an event of typ.
func NewEvent(typ string) Event {
	return Event{ID: uuid.New(), Type: typ, At: time.Now().UTC()}
}

// EventSink receives events. Emit must not block for long and never fails
// the caller; sinks log their own errors.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

// Emit calls f.
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Sinks fans an event out to every sink in order.
type Sinks []EventSink

// Emit forwards ev to every non-nil sink.
func (s Sinks) Emit(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// NopSink drops every event.
var NopSink EventSink = nopSink{}

// Notifier sends a text message to a telegram user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// NotifierFunc adapts a function, such as (*telegram.Bot).SendText, to Notifier.
type NotifierFunc func(ctx context.Context, userID int64, text string) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}
