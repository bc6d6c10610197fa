// Package main contains the entrypoint for the Golden Dragon bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/usmnv/gdbot/internal/api"
	"github.com/usmnv/gdbot/internal/bot"
	"github.com/usmnv/gdbot/internal/config"
	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/dialog"
	"github.com/usmnv/gdbot/internal/logger"
	"github.com/usmnv/gdbot/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires all components together, starts them, and blocks until shutdown.
// Returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	sessions := session.NewStore()

	// The broadcaster needs the Telegram client and the dialog engine needs
	// the broadcaster, so the sender is filled in after the bot is built.
	sender := &bot.TelegramSender{}
	broadcaster := bot.NewBroadcaster(store, sender, log)
	engine := dialog.New(store, sessions, broadcaster, cfg.Telegram.AdminCode, log)

	deps := bot.Deps{
		Logger: log,
		Config: cfg,
		Store:  store,
		Engine: engine,
	}

	tg, err := tgbot.New(cfg.Telegram.Token,
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(bot.NewRouter(deps)),
	)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	sender.Bot = tg

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Bot authorized", "bot_id", me.ID, "bot_username", me.Username)

	apiServer := api.NewServer(cfg.API.Addr, store, log)

	sched, err := bot.NewScheduler(store, cfg.Scheduler, log)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, tg, apiServer, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
