package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockedby/relaybot/internal/api"
	"github.com/blockedby/relaybot/internal/bot"
	"github.com/blockedby/relaybot/internal/collector"
	"github.com/blockedby/relaybot/internal/config"
	"github.com/blockedby/relaybot/internal/database"
	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/nats"
	"github.com/blockedby/relaybot/internal/publisher"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/telegram"
	"github.com/blockedby/relaybot/internal/transfer"
	"github.com/blockedby/relaybot/internal/web"
)

const eventRetention = 72 * time.Hour

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Msg("starting relay bot")

	// 3. Setup context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4. Connect to database and migrate
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 5. Connect to NATS; events stay local when it is down
	var sinks transfer.Sinks
	hub := web.NewHub()
	go hub.Run()
	defer hub.Stop()

	nc, err := nats.New(ctx, cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, events go to the dashboard only")
		sinks = append(sinks, hub)
	} else {
		defer nc.Close()
		if err := nc.EnsureStream(ctx, eventRetention); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure event stream")
		}
		sinks = append(sinks, publisher.NewEventPublisher(nc))
		stopSub, err := nc.Subscribe(ctx, nats.SubjectAll, func(data []byte) error {
			ev, err := web.DecodeEvent(data)
			if err != nil {
				// malformed events are dropped, not redelivered
				log.Warn().Err(err).Msg("dropping malformed event")
				return nil
			}
			hub.Broadcast(ev)
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to events")
		}
		defer stopSub()
	}

	// 6. Initialize repositories
	sessions := repository.NewSessionPool(db.GORM).WithDailyLimit(cfg.MaxDailyTransfer)
	ledger := repository.NewTaskLedger(db.GORM)
	collections := repository.NewCollectionsRepository(db.GORM)
	media := repository.NewMediaRepository(db.GORM)
	users := repository.NewUsersRepository(db.GORM)
	var stats api.StatsRepository
	if db.Pool != nil {
		stats = repository.NewStatsRepository(db.Pool)
	}
	admins := config.NewAdminStore(config.EnvAdminSource, cfg.AdminIDs)

	// 7. Initialize telegram: session client pool and receiving bot
	resolver, err := telegram.NewResolver(cfg.Proxy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid proxy")
	}
	pool := telegram.NewPool(sessions, telegram.NewSessionDialer(cfg.TGApiID, cfg.TGApiHash, resolver), telegram.DefaultPoolOptions())

	receiver, err := telegram.NewBot(telegram.BotConfig{
		APIID:       cfg.TGApiID,
		APIHash:     cfg.TGApiHash,
		Token:       cfg.BotToken,
		SessionFile: cfg.BotSessionFile,
		Resolver:    resolver,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	botUsername := cfg.BotUsername
	if receiver.Username() != "" {
		botUsername = receiver.Username()
	}
	notifier := transfer.NotifierFunc(receiver.SendText)

	// 8. Scanner side: engine, run manager, janitor
	policy, err := transfer.ResolvePolicy(cfg.TransferProfile, cfg.TransferProfileFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load transfer profile")
	}
	engine := transfer.NewEngine(ledger, sessions, transfer.PoolConnector(pool), transfer.EngineConfig{
		BotUsername: botUsername,
		Policy:      policy,
	}).WithNotifier(notifier).WithEvents(sinks)

	manager := transfer.NewManager(engine, ledger, transfer.NewPacer(policy), transfer.ManagerConfig{
		AutoResume: cfg.TransferAutoResume,
	})
	if n, err := manager.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover interrupted tasks")
	} else if n > 0 {
		log.Info().Int("tasks", n).Msg("recovered interrupted tasks")
	}

	janitor := transfer.NewJanitor(ledger, cfg.TaskRetentionDays, cfg.CleanupInterval)
	janitor.Start(ctx)

	// 9. Receiving side: collector registry, assembler, delivery
	channels := publisher.NewChannelPublisher(receiver, cfg.PublicChannel, cfg.PrivateChannel)
	assembler := collector.NewAssembler(collections, media, notifier, botUsername).
		WithEvents(sinks).
		WithPublisher(channels)
	registry := collector.NewRegistry(media, assembler, collector.FlowConfig{Timeout: cfg.CollectorTimeout},
		func(ctx context.Context, senderID int64) bool {
			acc, err := sessions.GetByUserID(ctx, senderID)
			return err == nil && acc != nil
		})
	delivery := bot.NewDelivery(receiver, collections, users, admins, cfg.AdminContact)
	router := bot.NewRouter(registry, delivery)
	receiver.OnMessage(router.OnMessage)

	// 10. Admin API and dashboard front
	apiServer := api.NewServer(&api.Config{
		Port:        cfg.HTTPPort,
		Title:       "Relay Admin API",
		Description: "Session pool, transfer control and statistics",
		Version:     "dev",
	}, &api.Dependencies{
		Sessions: sessions,
		Tasks:    ledger,
		Manager:  manager,
		Stats:    stats,
		Admins:   admins,
	})
	server := web.NewServer(&web.Config{
		Port:      cfg.HTTPPort,
		DocsTitle: "Relay Admin API",
		DocsDesc:  "Session pool, transfer control and statistics",
	}, apiServer, hub)

	log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	// 11. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	janitor.Stop()
	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}

	pool.DisconnectAll()
	router.Close()
	registry.Close()
	receiver.Stop()

	log.Info().Msg("shutdown complete")
}
