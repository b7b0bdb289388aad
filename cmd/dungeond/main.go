package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dungeonhold/server/internal/config"
	"github.com/dungeonhold/server/internal/data"
	"github.com/dungeonhold/server/internal/engine"
	"github.com/dungeonhold/server/internal/persist"
	"github.com/dungeonhold/server/internal/rng"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("DUNGEOND_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Connect to PostgreSQL and run migrations
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// 4. Load the rulebook
	rulebook, err := data.Load()
	if err != nil {
		return fmt.Errorf("load rulebook: %w", err)
	}

	// 5. Build the engine
	rnd, err := rng.NewService()
	if err != nil {
		return fmt.Errorf("rng: %w", err)
	}
	store := persist.NewStore(db)
	eng := engine.New(store, rulebook, rnd, rng.WallClock{}, log)
	_ = eng // the transport adapter drives the engine; it attaches here

	// 6. Start the outbox dispatcher
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	dispatcher := persist.NewDispatcher(
		persist.NewPGOutbox(db),
		&persist.LogPublisher{Log: log},
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		log,
	)
	go dispatcher.Run(runCtx)

	log.Info("engine ready",
		zap.String("server", cfg.Server.Name),
		zap.Duration("outbox_poll", cfg.Outbox.PollInterval))

	// 7. Wait for shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdownCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	// Flush whatever the outbox still holds before stopping.
	stop()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := dispatcher.Drain(flushCtx); err != nil {
		log.Warn("final outbox drain failed", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
