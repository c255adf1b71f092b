// Command server runs the panchang digest API and its daily mail schedule.
//
// Configuration comes from config.yaml (or the file named by PANCHANG_CONFIG) and
// PANCHANG_-prefixed environment variables; see internal/config. With -dispatch-once the
// binary sends one digest batch and exits instead of serving.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sakif/panchang/internal/config"
	"github.com/sakif/panchang/internal/logging"
	"github.com/sakif/panchang/internal/server"
)

func main() {
	dispatchOnce := flag.Bool("dispatch-once", false, "send one digest batch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		slog.Error("failed to create logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if cfg.DB.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *dispatchOnce); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, dispatchOnce bool) error {
	app, err := server.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if dispatchOnce {
		report, err := app.Dispatcher.Run(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	if len(app.Providers) == 0 {
		logger.Warn("no OAuth provider configured, login is disabled")
	}
	return server.New(app).Start(ctx)
}
