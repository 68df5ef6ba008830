package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jdziat/protoflow/pkg/config"
	"github.com/jdziat/protoflow/pkg/orchestrator"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/storage"
	"github.com/jdziat/protoflow/pkg/transport"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens run history, or returns nil when run_db is empty.
func openStore(ctx context.Context, cfg config.Config) (*storage.GormStorage, error) {
	if cfg.RunDB == "" {
		return nil, nil
	}
	return storage.Open(ctx, cfg.RunDB)
}

func newCaller(cfg config.Config, logger *slog.Logger, store *storage.GormStorage) *orchestrator.Caller {
	// Validated by config.Load.
	profile, _ := transport.ParseProfile(cfg.Profile)
	framing, _ := protocol.ParseFraming(cfg.Framing)

	opts := []orchestrator.Option{
		orchestrator.WithProfile(profile),
		orchestrator.WithFraming(framing),
		orchestrator.WithAcceptTimeout(cfg.Call.AcceptTimeout),
		orchestrator.WithTimeout(cfg.Call.Timeout),
		orchestrator.WithRetryAttempts(cfg.Call.RetryAttempts),
		orchestrator.WithLogger(logger),
	}
	if len(cfg.Call.Command) > 0 {
		opts = append(opts, orchestrator.WithCommand(cfg.Call.Command...))
	}
	if store != nil {
		opts = append(opts, orchestrator.WithStore(store))
	}
	return orchestrator.New(opts...)
}
