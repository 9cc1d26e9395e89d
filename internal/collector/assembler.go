package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/transfer"
)

// Collections is the part of the collections repository the assembler uses.
type Collections interface {
	GetByTitle(ctx context.Context, title string, creatorID int64) (*models.Collection, error)
	Create(ctx context.Context, in repository.NewCollection) (*models.Collection, error)
	UpdatePermission(ctx context.Context, id uint, level models.PermissionLevel) error
}

// Media is the part of the media repository the assembler uses.
type Media interface {
	MaxOrder(ctx context.Context, collectionID uint) (int, error)
	AddMediaFiles(ctx context.Context, inputs []repository.MediaFileInput) ([]repository.AddResult, error)
	MinPermission(ctx context.Context, collectionID uint) (models.PermissionLevel, bool, error)
}

// Publisher posts newly stored files to the distribution channels.
type Publisher interface {
	Publish(ctx context.Context, files []models.MediaFile, caption string) error
}

// Assembler stores a flow's items as a collection and reports the outcome.
type Assembler struct {
	collections Collections
	media       Media
	notifier    transfer.Notifier
	events      transfer.EventSink
	publisher   Publisher
	botUsername string
	log         *logger.Logger
}

// NewAssembler creates an assembler. publisher may be nil.
func NewAssembler(collections Collections, media Media, notifier transfer.Notifier, botUsername string) *Assembler {
	return &Assembler{
		collections: collections,
		media:       media,
		notifier:    notifier,
		events:      transfer.NopSink,
		botUsername: strings.TrimPrefix(botUsername, "@"),
		log:         logger.With("assembler"),
	}
}

// WithEvents sets the event sink.
func (a *Assembler) WithEvents(s transfer.EventSink) *Assembler {
	a.events = s
	return a
}

// WithPublisher sets the channel publisher.
func (a *Assembler) WithPublisher(p Publisher) *Assembler {
	a.publisher = p
	return a
}

// DeepLink returns the link that delivers a collection.
func (a *Assembler) DeepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", a.botUsername, token)
}

// Finalize appends items to the initiator's collection with the payload's
// title, creating it when missing. Storage errors are reported to the
// initiator and returned.
func (a *Assembler) Finalize(ctx context.Context, p *transfer.Payload, items []Item, sum Summary) error {
	if len(items) == 0 {
		a.notify(ctx, p.UserID, emptyText(p, sum))
		return nil
	}

	coll, created, start, err := a.target(ctx, p)
	if err != nil {
		return a.failed(ctx, p, err)
	}

	inputs := make([]repository.MediaFileInput, len(items))
	for i, it := range items {
		inputs[i] = repository.MediaFileInput{
			CollectionID:    coll.ID,
			FileID:          it.FileID,
			UniqueFileID:    it.UniqueFileID,
			FileType:        it.Kind,
			PermissionLevel: p.PermissionLevel,
			Order:           start + i,
		}
	}
	results, err := a.media.AddMediaFiles(ctx, inputs)
	if err != nil {
		return a.failed(ctx, p, err)
	}

	stats := collectStats{duplicates: sum.Duplicates, timedOut: sum.TimedOut, created: created}
	var added []models.MediaFile
	for _, res := range results {
		if res.Duplicate || res.File == nil {
			stats.duplicates++
			continue
		}
		added = append(added, *res.File)
		switch res.File.FileType {
		case models.FilePhoto:
			stats.photos++
		case models.FileVideo:
			stats.videos++
		default:
			stats.other++
		}
	}

	if level, ok, err := a.media.MinPermission(ctx, coll.ID); err != nil {
		return a.failed(ctx, p, err)
	} else if ok && level != coll.PermissionLevel {
		if err := a.collections.UpdatePermission(ctx, coll.ID, level); err != nil {
			return a.failed(ctx, p, err)
		}
		coll.PermissionLevel = level
	}

	a.log.Info().
		Uint("collection_id", coll.ID).
		Str("token", coll.Token).
		Bool("created", created).
		Int("added", len(added)).
		Int("duplicates", stats.duplicates).
		Msg("assembler: collection saved")
	a.notify(ctx, p.UserID, savedText(p, coll, stats, a.DeepLink(coll.Token)))

	ev := transfer.NewEvent(transfer.EventCollectionPublished)
	ev.TaskID = p.TaskID
	ev.CollectionID = coll.ID
	ev.CollectionToken = coll.Token
	ev.Title = coll.Title
	ev.Added = len(added)
	ev.Duplicates = stats.duplicates
	a.events.Emit(ctx, ev)

	if a.publisher != nil && len(added) > 0 {
		if err := a.publisher.Publish(ctx, added, publishCaption(coll, a.DeepLink(coll.Token))); err != nil {
			a.log.Warn().Err(err).Uint("collection_id", coll.ID).Msg("assembler: channel publish failed")
		}
	}
	return nil
}

// target finds the collection to append to, or creates it. start is the
// order of the first new file.
func (a *Assembler) target(ctx context.Context, p *transfer.Payload) (*models.Collection, bool, int, error) {
	coll, err := a.collections.GetByTitle(ctx, p.Title, p.UserID)
	if err != nil {
		return nil, false, 0, err
	}
	if coll != nil {
		max, err := a.media.MaxOrder(ctx, coll.ID)
		if err != nil {
			return nil, false, 0, err
		}
		return coll, false, max + 1, nil
	}
	coll, err = a.collections.Create(ctx, repository.NewCollection{
		Title:           p.Title,
		Description:     p.Description,
		CreatorID:       p.UserID,
		PermissionLevel: p.PermissionLevel,
	})
	if err != nil {
		return nil, false, 0, err
	}
	return coll, true, 0, nil
}

func (a *Assembler) failed(ctx context.Context, p *transfer.Payload, err error) error {
	a.log.Error().Err(err).Str("title", p.Title).Msg("assembler: saving collection failed")
	a.notify(ctx, p.UserID, fmt.Sprintf("Saving %q failed: %v", p.Title, err))
	return fmt.Errorf("assemble collection %q: %w", p.Title, err)
}

func (a *Assembler) notify(ctx context.Context, userID int64, text string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, userID, text); err != nil {
		a.log.Warn().Err(err).Int64("user_id", userID).Msg("assembler: notify failed")
	}
}

type collectStats struct {
	photos, videos, other int
	duplicates            int
	timedOut              bool
	created               bool
}

func emptyText(p *transfer.Payload, sum Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transfer %q: nothing new collected", p.Title)
	if sum.Duplicates > 0 {
		fmt.Fprintf(&b, " (%d duplicates skipped)", sum.Duplicates)
	}
	if sum.TimedOut {
		b.WriteString("\nThe collector timed out before the transfer finished.")
	}
	return b.String()
}

func savedText(p *transfer.Payload, coll *models.Collection, s collectStats, link string) string {
	var b strings.Builder
	verb := "updated"
	if s.created {
		verb = "created"
	}
	fmt.Fprintf(&b, "Collection %q %s\n", coll.Title, verb)
	fmt.Fprintf(&b, "Photos: %d\nVideos: %d\n", s.photos, s.videos)
	if s.other > 0 {
		fmt.Fprintf(&b, "Other: %d\n", s.other)
	}
	fmt.Fprintf(&b, "Duplicates skipped: %d\n", s.duplicates)
	fmt.Fprintf(&b, "Access: %s\n", coll.PermissionLevel)
	fmt.Fprintf(&b, "Link: %s", link)
	if s.timedOut {
		b.WriteString("\nThe collector timed out; this is a partial result.")
	}
	if p.TaskID != 0 {
		fmt.Fprintf(&b, "\nTask #%d", p.TaskID)
	}
	return b.String()
}

func publishCaption(coll *models.Collection, link string) string {
	caption := coll.Title
	if coll.Description != nil && *coll.Description != "" {
		caption += "\n\n" + *coll.Description
	}
	return caption + "\n\n" + link
}
