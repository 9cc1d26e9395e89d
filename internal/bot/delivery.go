// Package bot routes the receiving bot's private messages: transfer protocol
// traffic to the collector, everything else to deep-link delivery.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/publisher"
	"github.com/blockedby/relaybot/internal/telegram"
)

const startCommand = "/start"

// Sender is the part of the bot that answers users.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendMediaToUser(ctx context.Context, userID int64, media []telegram.MediaRef, caption string) error
}

// Collections loads a collection with its files by public token.
type Collections interface {
	GetByToken(ctx context.Context, token string) (*models.Collection, error)
}

// Users registers users and reports their level.
type Users interface {
	Touch(ctx context.Context, telegramID int64, username string) (*models.User, error)
}

// Admins reports whether a user bypasses permission checks.
type Admins interface {
	IsAdmin(id int64) bool
}

// Delivery answers /start and /start <token>: it sends a collection's files
// the user's level allows.
type Delivery struct {
	sender       Sender
	collections  Collections
	users        Users
	admins       Admins
	adminContact string
	log          *logger.Logger
}

// NewDelivery creates the deep-link handler. admins may be nil.
func NewDelivery(sender Sender, collections Collections, users Users, admins Admins, adminContact string) *Delivery {
	return &Delivery{
		sender:       sender,
		collections:  collections,
		users:        users,
		admins:       admins,
		adminContact: adminContact,
		log:          logger.With("delivery"),
	}
}

// IsStart reports whether text is a /start command, with or without a token.
func IsStart(text string) bool {
	cmd, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	return cmd == startCommand || strings.HasPrefix(cmd, startCommand+"@")
}

// StartToken returns the deep-link token of a /start command, or "".
func StartToken(text string) string {
	_, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(arg)
}

// Handle serves one /start command. It reports false for any other message.
func (d *Delivery) Handle(ctx context.Context, msg telegram.InboundMessage) bool {
	if !IsStart(msg.Text) {
		return false
	}
	if err := d.serve(ctx, msg); err != nil {
		d.log.Error().Err(err).Int64("user_id", msg.SenderID).Msg("delivery: start failed")
		d.reply(ctx, msg.SenderID, "Something went wrong, please try again later.")
	}
	return true
}

func (d *Delivery) serve(ctx context.Context, msg telegram.InboundMessage) error {
	user, err := d.users.Touch(ctx, msg.SenderID, msg.Username)
	if err != nil {
		return err
	}
	level := user.Level
	if d.admins != nil && d.admins.IsAdmin(msg.SenderID) {
		level = models.PermissionVIP
	}

	token := StartToken(msg.Text)
	if token == "" {
		d.reply(ctx, msg.SenderID, "Welcome! Open a collection link to receive its files.")
		return nil
	}

	coll, err := d.collections.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if coll == nil {
		d.reply(ctx, msg.SenderID, "This collection does not exist or was deleted.")
		return nil
	}

	var allowed []models.MediaFile
	var total, open fileCounts
	for _, f := range coll.MediaFiles {
		total.add(f.FileType)
		if models.HasPermission(level, f.PermissionLevel) {
			allowed = append(allowed, f)
			open.add(f.FileType)
		}
	}

	log := d.log.With().Int64("user_id", msg.SenderID).Str("token", token).Logger()
	if len(allowed) == 0 {
		log.Info().Stringer("level", level).Msg("delivery: collection locked for user")
		d.reply(ctx, msg.SenderID, d.upgradeText(coll, total))
		return nil
	}

	d.reply(ctx, msg.SenderID, infoText(coll, open, total))
	refs, err := publisher.MediaRefs(allowed)
	if err != nil {
		log.Warn().Err(err).Msg("delivery: skipping unreadable file ids")
	}
	if err := d.sender.SendMediaToUser(ctx, msg.SenderID, refs, ""); err != nil {
		log.Error().Err(err).Int("files", len(refs)).Msg("delivery: sending files failed")
		d.reply(ctx, msg.SenderID, "Some files could not be sent.")
		return nil
	}
	log.Info().Int("files", len(refs)).Msg("delivery: collection delivered")
	d.reply(ctx, msg.SenderID, "All files sent.")
	return nil
}

func (d *Delivery) reply(ctx context.Context, userID int64, text string) {
	if err := d.sender.SendText(ctx, userID, text); err != nil {
		d.log.Warn().Err(err).Int64("user_id", userID).Msg("delivery: reply failed")
	}
}

type fileCounts struct{ photos, videos, other int }

func (c *fileCounts) add(t models.FileType) {
	switch t {
	case models.FilePhoto:
		c.photos++
	case models.FileVideo:
		c.videos++
	default:
		c.other++
	}
}

func (c fileCounts) String() string {
	var parts []string
	if c.photos > 0 {
		parts = append(parts, fmt.Sprintf("%d photos", c.photos))
	}
	if c.videos > 0 {
		parts = append(parts, fmt.Sprintf("%d videos", c.videos))
	}
	if c.other > 0 {
		parts = append(parts, fmt.Sprintf("%d other files", c.other))
	}
	if len(parts) == 0 {
		return "no files"
	}
	return strings.Join(parts, ", ")
}

func (c fileCounts) sub(o fileCounts) fileCounts {
	return fileCounts{c.photos - o.photos, c.videos - o.videos, c.other - o.other}
}

func describe(coll *models.Collection) string {
	desc := "none"
	if coll.Description != nil && *coll.Description != "" {
		desc = *coll.Description
	}
	return fmt.Sprintf("Collection: %s\nDescription: %s", coll.Title, desc)
}

func infoText(coll *models.Collection, open, total fileCounts) string {
	text := describe(coll)
	if open == total {
		return text + "\nFiles: " + total.String()
	}
	return text + "\nYou can access: " + open.String() + "\nUpgrade to unlock: " + total.sub(open).String()
}

func (d *Delivery) upgradeText(coll *models.Collection, total fileCounts) string {
	contact := d.adminContact
	if contact == "" {
		contact = "an administrator"
	}
	return fmt.Sprintf("This collection needs the %s level.\n\n%s\nFiles: %s\n\nContact %s to upgrade your account.",
		coll.PermissionLevel, describe(coll), total, contact)
}
