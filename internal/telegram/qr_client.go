package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// QRClientBundle holds a raw client set up for QR login.
type QRClientBundle struct {
	Client     *telegram.Client
	Dispatcher tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewQRClient creates a raw td client for QR login. Unlike gotgproto it
// never prompts on the terminal.
func NewQRClient(apiID int, apiHash string, resolver dcs.Resolver) *QRClientBundle {
	storage := &session.StorageMemory{}
	dispatcher := tg.NewUpdateDispatcher()

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  &dispatcher,
		Resolver:       resolver,
	})
	return &QRClientBundle{Client: client, Dispatcher: dispatcher, Storage: storage}
}

// LoginResult is an authorized account ready to be stored as a session.
type LoginResult struct {
	SessionString string
	UserID        int64
	Username      string
	Phone         string
}

// PasswordPrompt asks for the two-step verification password.
type PasswordPrompt func(ctx context.Context) (string, error)

// QRLogin shows login tokens through onQRCode until the user scans one, then
// exports the session. password is consulted only for accounts with 2FA.
func QRLogin(ctx context.Context, bundle *QRClientBundle, onQRCode func(url string), password PasswordPrompt) (*LoginResult, error) {
	var result *LoginResult
	err := bundle.Client.Run(ctx, func(ctx context.Context) error {
		loggedIn := qrlogin.OnLoginToken(&bundle.Dispatcher)
		_, err := bundle.Client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			onQRCode(token.URL())
			return nil
		})
		if err != nil {
			if !needsPassword(err) || password == nil {
				return err
			}
			pwd, perr := password(ctx)
			if perr != nil {
				return perr
			}
			if _, err := bundle.Client.Auth().Password(ctx, pwd); err != nil {
				return fmt.Errorf("2fa password: %w", err)
			}
		}

		self, err := bundle.Client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		data, err := (&session.Loader{Storage: bundle.Storage}).Load(ctx)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		encoded, err := EncodeStringSession(data)
		if err != nil {
			return err
		}
		result = &LoginResult{SessionString: encoded, UserID: self.ID, Username: self.Username, Phone: self.Phone}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("qr login: %w", err)
	}
	return result, nil
}

func needsPassword(err error) bool {
	return errors.Is(err, auth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED")
}
