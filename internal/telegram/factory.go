package telegram

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/gotd/td/telegram/dcs"

	"github.com/blockedby/relaybot/internal/models"
)

// NewSessionDialer returns a Dialer that restores accounts from their stored
// string session. The account's own api credentials win over the defaults.
// The client outlives ctx, which only bounds how long the dial is awaited.
func NewSessionDialer(apiID int, apiHash string, resolver dcs.Resolver) Dialer {
	return func(ctx context.Context, account *models.SessionAccount) (*Handle, error) {
		id, hash := apiID, apiHash
		if account.APIID != 0 && account.APIHash != "" {
			id, hash = account.APIID, account.APIHash
		}
		if account.SessionString == "" {
			return nil, fmt.Errorf("session %s has no stored login", account.Name)
		}

		return awaitDial(ctx, func() (*Handle, error) {
			client, err := gotgproto.NewClient(
				id,
				hash,
				gotgproto.ClientTypePhone(""), // empty = use the session
				&gotgproto.ClientOpts{
					Session:          sessionMaker.StringSession(account.SessionString),
					InMemory:         true,
					DisableCopyright: true,
					Resolver:         resolver,
				},
			)
			if err != nil {
				return nil, fmt.Errorf("create telegram client: %w", err)
			}
			return &Handle{API: client.API(), Self: client.Self, Stop: client.Stop}, nil
		})
	}
}

type dialResult struct {
	handle *Handle
	err    error
}

// awaitDial runs connect until it returns or ctx ends. A connection that
// completes after ctx ended is stopped.
func awaitDial(ctx context.Context, connect func() (*Handle, error)) (*Handle, error) {
	done := make(chan dialResult, 1)
	go func() {
		h, err := connect()
		done <- dialResult{h, err}
	}()

	select {
	case res := <-done:
		return res.handle, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil && res.handle != nil && res.handle.Stop != nil {
				res.handle.Stop()
			}
		}()
		return nil, fmt.Errorf("dial abandoned: %w", ctx.Err())
	}
}
