package publisher

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/telegram"
)

// ChannelSender is the part of the bot that posts to channels.
type ChannelSender interface {
	ResolveChannel(ctx context.Context, username string) (tg.InputPeerClass, error)
	SendMedia(ctx context.Context, peer tg.InputPeerClass, media []telegram.MediaRef, caption string) error
}

// ChannelPublisher posts new collections to the distribution channels: a
// random free sample to the public channel and everything to the private one.
// Either channel may be unset.
type ChannelPublisher struct {
	sender  ChannelSender
	public  string
	private string
	rnd     *rand.Rand
	log     *logger.Logger

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass
}

// NewChannelPublisher creates a publisher for the given channel usernames.
func NewChannelPublisher(sender ChannelSender, publicChannel, privateChannel string) *ChannelPublisher {
	return &ChannelPublisher{
		sender:  sender,
		public:  telegram.NormalizeUsername(publicChannel),
		private: telegram.NormalizeUsername(privateChannel),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:     logger.With("channels"),
		peers:   make(map[string]tg.InputPeerClass),
	}
}

// WithRand replaces the sample source (tests).
func (p *ChannelPublisher) WithRand(r *rand.Rand) *ChannelPublisher {
	p.rnd = r
	return p
}

// Publish posts files to both channels. Channel errors are logged and never
// returned, since the collection is already stored.
func (p *ChannelPublisher) Publish(ctx context.Context, files []models.MediaFile, caption string) error {
	if p.public != "" {
		if sample := p.PublicSample(files); len(sample) > 0 {
			p.post(ctx, p.public, sample, caption)
		} else {
			p.log.Debug().Msg("channels: no free media for the public channel")
		}
	}
	if p.private != "" {
		if all := visualMedia(files); len(all) > 0 {
			p.post(ctx, p.private, all, caption)
		}
	}
	return nil
}

// PublicSample picks what the public channel shows: the only free file, two
// random ones when all free files share a kind, or one photo and one video.
func (p *ChannelPublisher) PublicSample(files []models.MediaFile) []models.MediaFile {
	var free, photos, videos []models.MediaFile
	for _, f := range files {
		if f.PermissionLevel != models.PermissionNormal {
			continue
		}
		switch f.FileType {
		case models.FilePhoto:
			photos = append(photos, f)
		case models.FileVideo:
			videos = append(videos, f)
		default:
			continue
		}
		free = append(free, f)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case len(free) <= 1:
		return free
	case len(videos) == 0:
		return p.pick(photos, 2)
	case len(photos) == 0:
		return p.pick(videos, 2)
	default:
		return append(p.pick(photos, 1), p.pick(videos, 1)...)
	}
}

// pick returns n distinct random files. Callers hold mu.
func (p *ChannelPublisher) pick(files []models.MediaFile, n int) []models.MediaFile {
	idx := p.rnd.Perm(len(files))
	out := make([]models.MediaFile, 0, n)
	for _, i := range idx[:min(n, len(files))] {
		out = append(out, files[i])
	}
	return out
}

func visualMedia(files []models.MediaFile) []models.MediaFile {
	out := make([]models.MediaFile, 0, len(files))
	for _, f := range files {
		if f.FileType == models.FilePhoto || f.FileType == models.FileVideo {
			out = append(out, f)
		}
	}
	return out
}

func (p *ChannelPublisher) post(ctx context.Context, channel string, files []models.MediaFile, caption string) {
	log := p.log.With().Str("channel", channel).Int("files", len(files)).Logger()

	refs, err := MediaRefs(files)
	if err != nil {
		log.Error().Err(err).Msg("channels: bad stored file id")
		return
	}
	peer, err := p.peer(ctx, channel)
	if err != nil {
		log.Error().Err(err).Msg("channels: resolve channel failed")
		return
	}
	if err := p.sender.SendMedia(ctx, peer, refs, caption); err != nil {
		log.Error().Err(err).Msg("channels: publish failed")
		return
	}
	log.Info().Msg("channels: published")
}

func (p *ChannelPublisher) peer(ctx context.Context, channel string) (tg.InputPeerClass, error) {
	p.mu.Lock()
	peer, ok := p.peers[channel]
	p.mu.Unlock()
	if ok {
		return peer, nil
	}
	peer, err := p.sender.ResolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.peers[channel] = peer
	p.mu.Unlock()
	return peer, nil
}

// MediaRefs decodes the stored file ids of files.
func MediaRefs(files []models.MediaFile) ([]telegram.MediaRef, error) {
	refs := make([]telegram.MediaRef, 0, len(files))
	var errs []error
	for _, f := range files {
		ref, err := telegram.ParseFileID(f.FileID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}
