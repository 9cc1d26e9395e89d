package telegram

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"

	"github.com/gotd/td/tgerr"
)

var (
	// ErrSessionInactive is returned for a missing or deactivated account.
	ErrSessionInactive = errors.New("session account inactive")
	// ErrConnection matches every ConnectionError.
	ErrConnection = errors.New("telegram connection failed")
	// ErrNotFound is returned when a username does not resolve.
	ErrNotFound = errors.New("telegram peer not found")
	// ErrNotChannel is returned when a username resolves to something other than a channel.
	ErrNotChannel = errors.New("peer is not a channel")
)

// FloodWaitError is a rate-limit reply: the account must wait Seconds before retrying.
type FloodWaitError struct {
	Seconds int
	Err     error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %ds", e.Seconds)
}

func (e *FloodWaitError) Unwrap() error { return e.Err }

// ConnectionError reports that a session handle could not be established.
type ConnectionError struct {
	SessionID uint
	Attempts  int
	Err       error
}

func (e *ConnectionError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("connect session %d: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("connect session %d after %d attempts: %v", e.SessionID, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnection) hold for every ConnectionError.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// AsFloodWait reports whether err is a flood wait and how many seconds it asks for.
func AsFloodWait(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return int(math.Ceil(d.Seconds())), true
	}
	return parseFloodWait(err.Error())
}

// parseFloodWait reads FLOOD_WAIT_<n> out of an error string, for errors that
// lost their rpc type on the way up.
func parseFloodWait(s string) (int, bool) {
	_, rest, found := strings.Cut(s, "FLOOD_WAIT_")
	if !found {
		return 0, false
	}
	var seconds int
	if _, err := fmt.Sscanf(rest, "%d", &seconds); err != nil {
		return 0, false
	}
	return seconds, true
}

// isConnectionLoss reports errors after which the handle should be redialed.
func isConnectionLoss(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
