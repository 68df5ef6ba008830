package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/protoflow/pkg/config"
	"github.com/jdziat/protoflow/pkg/orchestrator"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/schedule"
	"github.com/jdziat/protoflow/pkg/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve function calls over HTTP and run configured schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Serve.Addr = addr
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			opts := []server.Option{
				server.WithRegistry(registry.Default),
				server.WithLogger(logger),
				server.WithRateLimit(cfg.Serve.RateLimit, cfg.Serve.Burst),
			}
			if store != nil {
				defer store.Close()
				if err := store.SyncFunctions(ctx, registry.Default.Describe()); err != nil {
					return fmt.Errorf("sync function catalog: %w", err)
				}
				opts = append(opts, server.WithStore(store))
			}

			caller := newCaller(cfg, logger, store)

			sched, err := newScheduler(cfg, caller, schedule.WithLogger(logger))
			if err != nil {
				return err
			}

			logger.Info("serving", "addr", cfg.Serve.Addr, "schedules", len(cfg.Schedules))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return server.Serve(gctx, cfg.Serve.Addr, server.Handler(caller, opts...))
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	return cmd
}

func newScheduler(cfg config.Config, caller schedule.Caller, opts ...schedule.Option) (*schedule.Scheduler, error) {
	sched := schedule.New(caller, opts...)
	for _, s := range cfg.Schedules {
		when, err := schedule.ParseSchedule(s.Schedule)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", s.Name, err)
		}
		input, err := s.InputJSON()
		if err != nil {
			return nil, err
		}
		err = sched.Add(schedule.Entry{
			Name:     s.Name,
			Schedule: when,
			Request: orchestrator.Request{
				ImportPath:   s.ImportPath,
				FunctionName: s.FunctionName,
				Input:        input,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}
