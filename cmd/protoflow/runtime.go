package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jdziat/protoflow/pkg/diag"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/runner"
	"github.com/jdziat/protoflow/pkg/transport"
)

func newRuntimeCmd() *cobra.Command {
	var (
		profile string
		socket  string
		framing string
	)

	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Run one job from the orchestrator and exit",
		Long: "Reads one job descriptor from the channel named by the configured profile, " +
			"calls the registered function and writes the result envelope back. " +
			"Exits 0 on success and 255 on any failure.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stderr := cmd.ErrOrStderr()

			cfg, err := loadConfig(cmd)
			if err != nil {
				diag.New(stderr, slog.LevelInfo).Error("Error loading configuration", "error", err)
				return &exitCodeError{code: runner.ExitFailure}
			}
			if cmd.Flags().Changed("profile") {
				cfg.Profile = profile
			}
			if cmd.Flags().Changed("socket") {
				cfg.Socket = socket
			}
			if cmd.Flags().Changed("framing") {
				cfg.Framing = framing
			}

			level, _ := cfg.Level()
			logger := diag.New(stderr, level)

			p, err := transport.ParseProfile(cfg.Profile)
			if err != nil {
				logger.Error("Error loading configuration", "error", err)
				return &exitCodeError{code: runner.ExitFailure}
			}
			f, err := protocol.ParseFraming(cfg.Framing)
			if err != nil {
				logger.Error("Error loading configuration", "error", err)
				return &exitCodeError{code: runner.ExitFailure}
			}

			r := runner.New(registry.Default,
				runner.WithProfile(p),
				runner.WithSocket(cfg.Socket),
				runner.WithFraming(f),
				runner.WithStdin(cmd.InOrStdin()),
				runner.WithLogger(logger),
			)
			if code := r.Run(cmd.Context()); code != runner.ExitSuccess {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "transport profile: socket or stdin (overrides PROTOFLOW_PROFILE)")
	cmd.Flags().StringVar(&socket, "socket", "", "socket path for the socket profile (overrides PROTOFLOW_SOCKET)")
	cmd.Flags().StringVar(&framing, "framing", "", "message framing: json or length (overrides PROTOFLOW_FRAMING)")
	return cmd
}
