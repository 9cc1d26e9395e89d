// Package telegram talks to telegram over MTProto: pooled per-account clients
// for scanning and relaying, the receiving bot, and account onboarding.
package telegram

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/gotd/td/tg"

	"github.com/blockedby/relaybot/internal/logger"
)

// RawAPI is the subset of *tg.Client the relay uses.
type RawAPI interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesForwardMessages(ctx context.Context, request *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error)
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
}

// Client is the connected handle of one session account.
type Client struct {
	sessionID   uint
	api         RawAPI
	self        *tg.User
	stop        func()
	rateLimiter *RateLimiter
	broken      atomic.Bool
	log         *logger.Logger
}

// NewClient wraps an authorized API handle. stop may be nil.
func NewClient(sessionID uint, api RawAPI, self *tg.User, stop func(), limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = DefaultRateLimiter()
	}
	return &Client{
		sessionID:   sessionID,
		api:         api,
		self:        self,
		stop:        stop,
		rateLimiter: limiter,
		log:         logger.With("telegram"),
	}
}

// SessionID returns the account this handle belongs to.
func (c *Client) SessionID() uint { return c.sessionID }

// Self returns the authorized user, if known.
func (c *Client) Self() *tg.User { return c.self }

// Connected reports whether the handle is still usable.
func (c *Client) Connected() bool { return !c.broken.Load() }

// Close stops the underlying connection.
func (c *Client) Close() {
	if c.broken.Swap(true) {
		return
	}
	if c.stop != nil {
		c.stop()
	}
}

// fail classifies an rpc error: flood waits update the limiter and become
// *FloodWaitError, lost connections mark the handle for redial.
func (c *Client) fail(op string, err error) error {
	if seconds, ok := AsFloodWait(err); ok {
		c.rateLimiter.SetFloodWait(seconds)
		c.log.Warn().Uint("session_id", c.sessionID).Int("wait_seconds", seconds).Str("op", op).Msg("telegram: FLOOD_WAIT received")
		return &FloodWaitError{Seconds: seconds, Err: err}
	}
	if isConnectionLoss(err) {
		c.broken.Store(true)
		c.log.Warn().Err(err).Uint("session_id", c.sessionID).Msg("telegram: connection lost")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ResolveChannel resolves a channel username, @name or t.me link.
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = NormalizeUsername(username)
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, c.fail("resolve channel "+username, err)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &Channel{ID: ch.ID, AccessHash: ch.AccessHash, Username: username, Title: ch.Title}, nil
		}
	}
	if len(resolved.Chats) == 0 && len(resolved.Users) == 0 {
		return nil, fmt.Errorf("resolve channel %s: %w", username, ErrNotFound)
	}
	return nil, fmt.Errorf("resolve channel %s: %w", username, ErrNotChannel)
}

// ResolveUser resolves a user or bot username.
func (c *Client) ResolveUser(ctx context.Context, username string) (*Peer, error) {
	username = NormalizeUsername(username)
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, c.fail("resolve user "+username, err)
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			return &Peer{ID: user.ID, AccessHash: user.AccessHash, Username: username, Bot: user.Bot}, nil
		}
	}
	return nil, fmt.Errorf("resolve user %s: %w", username, ErrNotFound)
}

// GetHistory returns one page of channel messages, newest first. An empty
// page means the history is exhausted.
func (c *Client) GetHistory(ctx context.Context, channel *Channel, q HistoryQuery) ([]Message, error) {
	if q.Limit <= 0 || q.Limit > MaxHistoryPage {
		q.Limit = MaxHistoryPage
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := &tg.MessagesGetHistoryRequest{
		Peer:     channel.InputPeer(),
		OffsetID: q.OffsetID,
		Limit:    q.Limit,
	}
	if !q.OffsetDate.IsZero() {
		req.OffsetDate = int(q.OffsetDate.Unix())
	}

	c.log.Debug().Int64("channel_id", channel.ID).Int("offset_id", q.OffsetID).Int("limit", q.Limit).Msg("telegram: MessagesGetHistory")
	history, err := c.api.MessagesGetHistory(ctx, req)
	if err != nil {
		return nil, c.fail("get history", err)
	}
	return extractMessages(history), nil
}

// ForwardMessage forwards one channel message to a peer. The media is relayed
// by handle, never downloaded.
func (c *Client) ForwardMessage(ctx context.Context, channel *Channel, msgID int, to *Peer) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: channel.InputPeer(),
		ID:       []int{msgID},
		RandomID: []int64{rand.Int64()},
		ToPeer:   to.InputPeer(),
	})
	if err != nil {
		return c.fail(fmt.Sprintf("forward message %d", msgID), err)
	}
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to *Peer, text string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     to.InputPeer(),
		Message:  text,
		RandomID: rand.Int64(),
	})
	if err != nil {
		return c.fail("send message", err)
	}
	return nil
}

func extractMessages(history tg.MessagesMessagesClass) []Message {
	var raw []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	}

	out := make([]Message, 0, len(raw))
	for _, mc := range raw {
		switch m := mc.(type) {
		case *tg.Message:
			out = append(out, Message{
				ID:    m.ID,
				Date:  time.Unix(int64(m.Date), 0).UTC(),
				Text:  m.Message,
				Media: ExtractMedia(m),
			})
		case *tg.MessageService:
			// kept so paging advances past pages of service entries
			out = append(out, Message{ID: m.ID, Date: time.Unix(int64(m.Date), 0).UTC(), Service: true})
		}
	}
	return out
}
