package telegram

import (
	"strings"
	"time"

	"github.com/gotd/td/tg"
)

// Message is a history entry reduced to what the relay needs.
type Message struct {
	ID    int       // message id, unique within the channel
	Date  time.Time // creation time, UTC
	Text  string    // text or media caption
	Media *MediaRef // nil for text-only and unsupported media

	// Service marks joins, pins and other non-content entries.
	Service bool
}

// Channel is a resolved source channel.
type Channel struct {
	ID         int64
	AccessHash int64
	Username   string
	Title      string
}

// InputPeer returns the peer used in API requests.
func (c *Channel) InputPeer() tg.InputPeerClass {
	return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
}

// Peer is a resolved user or bot.
type Peer struct {
	ID         int64
	AccessHash int64
	Username   string
	Bot        bool
}

// InputPeer returns the peer used in API requests.
func (p *Peer) InputPeer() tg.InputPeerClass {
	return &tg.InputPeerUser{UserID: p.ID, AccessHash: p.AccessHash}
}

// HistoryQuery selects one page of channel history, newest first.
// OffsetID and OffsetDate are exclusive upper bounds; zero means "from the newest".
type HistoryQuery struct {
	OffsetID   int
	OffsetDate time.Time
	Limit      int
}

// MaxHistoryPage is the largest page the API returns.
const MaxHistoryPage = 100

// NormalizeUsername accepts "name", "@name" and t.me links and returns "name".
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, prefix := range []string{"t.me/", "telegram.me/", "@"} {
		s = strings.TrimPrefix(s, prefix)
	}
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return s
}
