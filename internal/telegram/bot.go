package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"

	"github.com/blockedby/relaybot/internal/logger"
)

// MaxAlbum is the largest media group telegram accepts.
const MaxAlbum = 10

// ErrUnknownPeer is returned when the bot has never seen the user it should write to.
var ErrUnknownPeer = errors.New("peer unknown to the bot")

// InboundMessage is a private message received by the bot.
type InboundMessage struct {
	SenderID  int64
	Username  string
	MessageID int
	Date      time.Time
	Text      string
	Media     *MediaRef
}

// MessageHandler consumes inbound messages. Handlers run on the update
// dispatcher goroutine and must not block for long.
type MessageHandler func(ctx context.Context, msg InboundMessage)

// BotAPI is the subset of *tg.Client the bot uses for sending.
type BotAPI interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesSendMedia(ctx context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error)
	MessagesSendMultiMedia(ctx context.Context, request *tg.MessagesSendMultiMediaRequest) (tg.UpdatesClass, error)
}

// PeerLookup returns the stored input peer of a user id, or nil.
type PeerLookup func(userID int64) tg.InputPeerClass

// BotConfig configures the receiving bot.
type BotConfig struct {
	APIID       int
	APIHash     string
	Token       string
	SessionFile string
	Resolver    dcs.Resolver
}

// Bot is the receiving account: it collects relayed media and answers users.
type Bot struct {
	client      *gotgproto.Client
	api         BotAPI
	peers       PeerLookup
	rateLimiter *RateLimiter
	groupDelay  time.Duration
	username    string
	log         *logger.Logger

	mu       sync.RWMutex
	handlers []MessageHandler
}

// NewBot logs the bot in and starts dispatching its updates.
func NewBot(cfg BotConfig) (*Bot, error) {
	client, err := gotgproto.NewClient(
		cfg.APIID,
		cfg.APIHash,
		gotgproto.ClientTypeBot(cfg.Token),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(cfg.SessionFile)),
			DisableCopyright: true,
			Resolver:         cfg.Resolver,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create bot client: %w", err)
	}

	b := newBot(client.API(), func(userID int64) tg.InputPeerClass {
		return client.PeerStorage.GetInputPeerById(userID)
	})
	b.client = client
	if client.Self != nil {
		b.username = client.Self.Username
	}
	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, b.onUpdate))
	b.log.Info().Str("username", b.username).Msg("bot: started")
	return b, nil
}

func newBot(api BotAPI, peers PeerLookup) *Bot {
	return &Bot{
		api:         api,
		peers:       peers,
		rateLimiter: NewRateLimiter(20, 5),
		groupDelay:  time.Second,
		log:         logger.With("bot"),
	}
}

// Username returns the bot's username without @.
func (b *Bot) Username() string { return b.username }

// OnMessage registers a handler for private messages.
func (b *Bot) OnMessage(h MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bot) onUpdate(ctx *ext.Context, u *ext.Update) error {
	if u.EffectiveMessage == nil || u.EffectiveMessage.Message == nil {
		return nil
	}
	user := u.EffectiveUser()
	if user == nil || user.Self {
		return nil
	}
	msg := u.EffectiveMessage.Message
	if msg.Out {
		return nil
	}
	if _, private := msg.PeerID.(*tg.PeerUser); !private {
		return nil
	}

	b.dispatch(ctx, InboundMessage{
		SenderID:  user.ID,
		Username:  user.Username,
		MessageID: msg.ID,
		Date:      time.Unix(int64(msg.Date), 0).UTC(),
		Text:      msg.Message,
		Media:     ExtractMedia(msg),
	})
	return nil
}

func (b *Bot) dispatch(ctx context.Context, in InboundMessage) {
	b.mu.RLock()
	hs := b.handlers
	b.mu.RUnlock()
	for _, h := range hs {
		h(ctx, in)
	}
}

func (b *Bot) peer(userID int64) (tg.InputPeerClass, error) {
	p := b.peers(userID)
	if p == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUnknownPeer)
	}
	if _, empty := p.(*tg.InputPeerEmpty); empty {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUnknownPeer)
	}
	return p, nil
}

// SendText messages a user who has talked to the bot before.
func (b *Bot) SendText(ctx context.Context, userID int64, text string) error {
	peer, err := b.peer(userID)
	if err != nil {
		return err
	}
	return b.SendTextTo(ctx, peer, text)
}

// SendTextTo sends a text message to any input peer.
func (b *Bot) SendTextTo(ctx context.Context, peer tg.InputPeerClass, text string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int64(),
	})
	if err != nil {
		return b.fail("send message", err)
	}
	return nil
}

// SendMediaToUser sends media handles to a user in albums of up to MaxAlbum.
func (b *Bot) SendMediaToUser(ctx context.Context, userID int64, media []MediaRef, caption string) error {
	peer, err := b.peer(userID)
	if err != nil {
		return err
	}
	return b.SendMedia(ctx, peer, media, caption)
}

// SendMedia sends media handles in albums of up to MaxAlbum, pausing between
// albums. The caption goes on the first item of the first album.
func (b *Bot) SendMedia(ctx context.Context, peer tg.InputPeerClass, media []MediaRef, caption string) error {
	for start := 0; start < len(media); start += MaxAlbum {
		if start > 0 && b.groupDelay > 0 {
			if err := sleepContext(ctx, b.groupDelay); err != nil {
				return err
			}
		}
		end := min(start+MaxAlbum, len(media))
		groupCaption := ""
		if start == 0 {
			groupCaption = caption
		}
		if err := b.sendGroup(ctx, peer, media[start:end], groupCaption); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) sendGroup(ctx context.Context, peer tg.InputPeerClass, group []MediaRef, caption string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	if len(group) == 1 {
		_, err := b.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     peer,
			Media:    group[0].InputMedia(),
			Message:  caption,
			RandomID: rand.Int64(),
		})
		if err != nil {
			return b.fail("send media", err)
		}
		return nil
	}

	items := make([]tg.InputSingleMedia, len(group))
	for i, m := range group {
		items[i] = tg.InputSingleMedia{Media: m.InputMedia(), RandomID: rand.Int64()}
	}
	items[0].Message = caption
	if _, err := b.api.MessagesSendMultiMedia(ctx, &tg.MessagesSendMultiMediaRequest{Peer: peer, MultiMedia: items}); err != nil {
		return b.fail("send album", err)
	}
	return nil
}

// ResolveChannel resolves a channel the bot posts to.
func (b *Bot) ResolveChannel(ctx context.Context, username string) (tg.InputPeerClass, error) {
	username = NormalizeUsername(username)
	resolved, err := b.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, b.fail("resolve channel "+username, err)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("resolve channel %s: %w", username, ErrNotChannel)
}

func (b *Bot) fail(op string, err error) error {
	if seconds, ok := AsFloodWait(err); ok {
		b.rateLimiter.SetFloodWait(seconds)
		return &FloodWaitError{Seconds: seconds, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Stop disconnects the bot.
func (b *Bot) Stop() {
	if b.client != nil {
		b.client.Stop()
		b.log.Info().Msg("bot: stopped")
	}
}
