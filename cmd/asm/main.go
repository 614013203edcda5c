package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/sfasm/config"
	"github.com/alejandrodnm/sfasm/internal/adapters/notify"
	"github.com/alejandrodnm/sfasm/internal/adapters/storage"
	"github.com/alejandrodnm/sfasm/internal/application/engine/market"
	"github.com/alejandrodnm/sfasm/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	periods := flag.Int("periods", 0, "number of trading periods (overrides config)")
	seed := flag.Uint64("seed", 0, "random seed (overrides config)")
	dryRun := flag.Bool("dry-run", false, "do not persist the run")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	listRuns := flag.Bool("runs", false, "list stored runs and exit")
	showRun := flag.String("show", "", "print the stored periods of RUN_ID and exit")
	agents := flag.Int("agents", 10, "agents shown in the final leaderboard, 0 = none")
	every := flag.Int("every", 100, "with -show, print one period out of every N")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *periods > 0 {
		cfg.Market.Periods = *periods
	}
	if *seed > 0 {
		cfg.Market.Seed = *seed
	}
	warnings := cfg.Validate()
	setupLogger(cfg.Log)
	for _, w := range warnings {
		slog.Warn("config corrected", "detail", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole(*agents, cfg.Market.ShowEvery)

	if *listRuns || *showRun != "" {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()

		if *listRuns {
			err = printRuns(ctx, store, console)
		} else {
			err = printRun(ctx, store, console, *showRun, *every)
		}
		if err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("asm starting",
		"config", *configPath,
		"agents", cfg.Market.NumAgents,
		"periods", cfg.Market.Periods,
		"seed", cfg.Market.Seed,
		"specialist", cfg.Specialist.Type,
		"dry_run", *dryRun,
	)

	// Interface nil (no un *SQLiteStorage nil) para que el motor no persista.
	var store ports.Storage
	if !*dryRun {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	engine, err := market.New(cfg.MarketConfig(), store, console)
	if err != nil {
		slog.Error("invalid market configuration", "err", err)
		os.Exit(1)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		slog.Error("simulation failed", "err", err, "run", result.Run.ID)
		os.Exit(1)
	}

	slog.Info("asm stopped cleanly", "run", result.Run.ID, "status", result.Run.Status)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
