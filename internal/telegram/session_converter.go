package telegram

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// ConvertToGotgprotoSession wraps gotd session data in gotgproto's storage record.
func ConvertToGotgprotoSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errors.New("session data is nil")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	return &storage.Session{Version: storage.LatestVersion, Data: raw}, nil
}

// EncodeStringSession renders session data in the string form accepted by
// sessionMaker.StringSession, which is what SessionAccount stores.
func EncodeStringSession(data *session.Data) (string, error) {
	sess, err := ConvertToGotgprotoSession(data)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeStringSession is the inverse of EncodeStringSession.
func DecodeStringSession(s string) (*session.Data, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode session string: %w", err)
	}
	var sess storage.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	var data session.Data
	if err := json.Unmarshal(sess.Data, &data); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	return &data, nil
}
