// Command session-login signs a telegram account in and stores it as a
// session account of the relay pool.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/relaybot/internal/config"
	"github.com/blockedby/relaybot/internal/database"
	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/telegram"
)

func main() {
	name := flag.String("name", "", "display name of the session account (required)")
	method := flag.String("method", "qr", "login method: qr, phone or tdata")
	priority := flag.Int("priority", 0, "selection priority; higher is preferred")
	printOnly := flag.Bool("print", false, "print the session string instead of storing it")
	flag.Parse()

	if *name == "" && !*printOnly {
		fmt.Fprintln(os.Stderr, "usage: session-login -name <name> [-method qr|phone|tdata] [-priority n] [-print]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if err := logger.Init("warn", ""); err != nil {
		fail("init logger", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reader := bufio.NewReader(os.Stdin)
	apiID, apiHash := apiCredentials(cfg, reader)

	var res *telegram.LoginResult
	switch *method {
	case "qr":
		res, err = loginQR(ctx, cfg, apiID, apiHash, reader)
	case "phone":
		phone, sess := phoneSession(reader)
		res, err = loginGotgproto(apiID, apiHash, phone, sess)
	case "tdata":
		var opt string
		var sess sessionMaker.SessionConstructor
		opt, sess, err = tdataSession(reader)
		if err == nil {
			res, err = loginGotgproto(apiID, apiHash, opt, sess)
		}
	default:
		err = fmt.Errorf("unknown method %q", *method)
	}
	if err != nil {
		fail("login", err)
	}

	fmt.Printf("\nlogged in as @%s (id %d)\n", res.Username, res.UserID)
	if *printOnly {
		fmt.Println("\nsession string:")
		fmt.Println("---")
		fmt.Println(res.SessionString)
		fmt.Println("---")
		fmt.Println("keep this secret: it gives full access to the account")
		return
	}

	if err := store(ctx, cfg, *name, *priority, apiID, apiHash, res); err != nil {
		fail("store session", err)
	}
}

func fail(op string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", op, err)
	os.Exit(1)
}

// apiCredentials reads the api id and hash from config or prompts for them.
func apiCredentials(cfg *config.Config, reader *bufio.Reader) (int, string) {
	apiID, apiHash := cfg.TGApiID, cfg.TGApiHash
	if apiID == 0 {
		fmt.Print("enter your api_id (from https://my.telegram.org): ")
		raw, _ := reader.ReadString('\n')
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			fail("read api_id", err)
		}
		apiID = id
	}
	if apiHash == "" {
		fmt.Print("enter your api_hash: ")
		raw, _ := reader.ReadString('\n')
		apiHash = strings.TrimSpace(raw)
	}
	return apiID, apiHash
}

func loginQR(ctx context.Context, cfg *config.Config, apiID int, apiHash string, reader *bufio.Reader) (*telegram.LoginResult, error) {
	resolver, err := telegram.NewResolver(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	bundle := telegram.NewQRClient(apiID, apiHash, resolver)

	fmt.Println("scan the code with telegram: settings > devices > link desktop device")
	return telegram.QRLogin(ctx, bundle, func(url string) {
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
		fmt.Println("waiting for the scan, the code refreshes automatically...")
	}, func(context.Context) (string, error) {
		fmt.Print("two-step verification password: ")
		pwd, err := reader.ReadString('\n')
		return strings.TrimSpace(pwd), err
	})
}

func phoneSession(reader *bufio.Reader) (string, sessionMaker.SessionConstructor) {
	fmt.Print("enter your phone number (with country code, e.g. +1234567890): ")
	phone, _ := reader.ReadString('\n')
	phone = strings.TrimSpace(phone)
	fmt.Println("authenticating... (check telegram for the code)")
	return phone, sessionMaker.SqlSession(sqlite.Open(filepath.Join(os.TempDir(), "relay_login")))
}

func tdataSession(reader *bufio.Reader) (string, sessionMaker.SessionConstructor, error) {
	path := desktopDataPath()
	accounts, err := tdesktop.Read(path, nil)
	if err != nil || len(accounts) == 0 {
		fmt.Printf("no telegram desktop data at %s\nenter the tdata path: ", path)
		raw, _ := reader.ReadString('\n')
		path = strings.TrimSpace(raw)
		if !strings.HasSuffix(path, "tdata") {
			path = filepath.Join(path, "tdata")
		}
		accounts, err = tdesktop.Read(path, nil)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read tdata: %w", err)
	}
	if len(accounts) == 0 {
		return "", nil, errors.New("no accounts in tdata")
	}

	idx := 0
	if len(accounts) > 1 {
		fmt.Printf("found %d accounts, select one [1]: ", len(accounts))
		raw, _ := reader.ReadString('\n')
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 1 && n <= len(accounts) {
			idx = n - 1
		}
	}
	return "", sessionMaker.TdataSession(accounts[idx]).Name("tdata_session"), nil
}

// desktopDataPath returns the default Telegram Desktop tdata directory.
func desktopDataPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default:
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

func loginGotgproto(apiID int, apiHash string, phone string, sess sessionMaker.SessionConstructor) (*telegram.LoginResult, error) {
	client, err := gotgproto.NewClient(apiID, apiHash, gotgproto.ClientTypePhone(phone), &gotgproto.ClientOpts{
		Session:          sess,
		DisableCopyright: true,
	})
	if err != nil {
		return nil, err
	}
	defer client.Stop()

	encoded, err := client.ExportStringSession()
	if err != nil {
		return nil, fmt.Errorf("export session: %w", err)
	}
	res := &telegram.LoginResult{SessionString: encoded}
	if client.Self != nil {
		res.UserID = client.Self.ID
		res.Username = client.Self.Username
		res.Phone = client.Self.Phone
	}
	return res, nil
}

// store adds the account, or refreshes the session string of the account
// already registered for the same telegram user.
func store(ctx context.Context, cfg *config.Config, name string, priority, apiID int, apiHash string, res *telegram.LoginResult) error {
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	pool := repository.NewSessionPool(db.GORM)
	existing, err := pool.GetByUserID(ctx, res.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		if _, err := pool.Update(ctx, existing.ID, repository.SessionUpdate{
			Name:          &name,
			Priority:      &priority,
			SessionString: &res.SessionString,
		}); err != nil {
			return err
		}
		fmt.Printf("session account #%d updated\n", existing.ID)
		return nil
	}

	acc, err := pool.Add(ctx, repository.NewSession{
		Name:          name,
		Phone:         res.Phone,
		UserID:        res.UserID,
		APIID:         apiID,
		APIHash:       apiHash,
		SessionString: res.SessionString,
		Priority:      priority,
	})
	if err != nil {
		return err
	}
	fmt.Printf("session account #%d added\n", acc.ID)
	return nil
}
