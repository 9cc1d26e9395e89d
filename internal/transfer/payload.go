// Package transfer scans a source channel newest to oldest and relays the
// matching media to the receiving bot, checkpointing every relay so that
// batch and flood-wait pauses can be resumed without rescanning.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/blockedby/relaybot/internal/models"
)

// Wire commands exchanged with the receiving bot.
const (
	StartCommand    = "/start_transfer_receive"
	CompleteCommand = "/transfer_complete"
)

var (
	// ErrInvalidPayload wraps every payload validation failure.
	ErrInvalidPayload = errors.New("invalid transfer payload")
	// ErrNotStartCommand is returned for text that is not a start command.
	ErrNotStartCommand = errors.New("not a start command")
)

// Mode selects which part of the history is scanned.
type Mode string

// Mode constants.
const (
	ModeAll       Mode = "all"
	ModeDateRange Mode = "date_range"
)

// DateRange is an inclusive window of message timestamps.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Payload is the transfer configuration. It is stored on the task and sent
// to the collector inside the start command.
type Payload struct {
	Mode            Mode                   `json:"mode"`
	SourceChannel   string                 `json:"sourceChannel"`
	DateRange       *DateRange             `json:"dateRange,omitempty"`
	ContentType     []models.FileType      `json:"contentType"`
	Keyword         string                 `json:"keyword"`
	Title           string                 `json:"title"`
	Description     *string                `json:"description,omitempty"`
	UserID          int64                  `json:"userId"`
	TaskID          uint                   `json:"taskId,omitempty"`
	PermissionLevel models.PermissionLevel `json:"permissionLevel"`
}

// Validate reports every problem with the payload at once.
func (p *Payload) Validate() error {
	var errs []error
	switch p.Mode {
	case ModeAll:
	case ModeDateRange:
		switch {
		case p.DateRange == nil || p.DateRange.Start.IsZero() || p.DateRange.End.IsZero():
			errs = append(errs, errors.New("date_range mode needs start and end"))
		case p.DateRange.Start.After(p.DateRange.End):
			errs = append(errs, errors.New("date range start is after end"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", p.Mode))
	}
	if strings.TrimSpace(p.SourceChannel) == "" {
		errs = append(errs, errors.New("source channel is required"))
	}
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if len(p.ContentType) == 0 {
		errs = append(errs, errors.New("at least one content type is required"))
	}
	for _, ct := range p.ContentType {
		if ct != models.FilePhoto && ct != models.FileVideo {
			errs = append(errs, fmt.Errorf("unsupported content type %q", ct))
		}
	}
	if p.UserID == 0 {
		errs = append(errs, errors.New("userId is required"))
	}
	if !p.PermissionLevel.Valid() {
		errs = append(errs, fmt.Errorf("unknown permission level %d", p.PermissionLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, errors.Join(errs...))
	}
	return nil
}

// Wants reports whether media of kind should be relayed.
func (p *Payload) Wants(kind models.FileType) bool {
	return slices.Contains(p.ContentType, kind)
}

// Marshal serializes the payload for the task config column and the wire.
func (p *Payload) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// ParsePayload decodes and validates a serialized payload. Unknown fields are rejected.
func ParsePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodeStartCommand renders the command that opens a collector flow.
func EncodeStartCommand(p *Payload) (string, error) {
	body, err := p.Marshal()
	if err != nil {
		return "", err
	}
	return StartCommand + " " + body, nil
}

// IsStartCommand reports whether text opens a collector flow.
func IsStartCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), StartCommand)
}

// IsCompleteCommand reports whether text is the completion signal.
func IsCompleteCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), CompleteCommand)
}

// ParseStartCommand extracts and validates the payload of a start command.
func ParseStartCommand(text string) (*Payload, error) {
	text = strings.TrimSpace(text)
	body, ok := strings.CutPrefix(text, StartCommand)
	if !ok {
		return nil, ErrNotStartCommand
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	return ParsePayload([]byte(body))
}
