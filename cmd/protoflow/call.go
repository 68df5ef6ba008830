package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdziat/protoflow/pkg/codec"
	"github.com/jdziat/protoflow/pkg/orchestrator"
)

func newCallCmd() *cobra.Command {
	var (
		input     string
		inputFile string
		noHistory bool
		showDiag  bool
	)

	cmd := &cobra.Command{
		Use:   "call <import_path> [function_name]",
		Short: "Call a function in a fresh runner process",
		Long: "Spawns a runner, sends it the job and prints the result envelope. " +
			"The function name defaults to \"" + orchestrator.DefaultFunctionName + "\". " +
			"Exits 1 when the function failed.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			raw, err := readInput(input, inputFile)
			if err != nil {
				return err
			}

			req := orchestrator.Request{ImportPath: args[0], Input: raw}
			if len(args) > 1 {
				req.FunctionName = args[1]
			}

			if noHistory {
				cfg.RunDB = ""
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			if store != nil {
				defer store.Close()
			}

			caller := newCaller(cfg, logger, store)
			res, err := caller.Call(cmd.Context(), req)
			if err != nil {
				return err
			}

			out, err := codec.EncodeEnvelope(res.Envelope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if showDiag {
				for _, rec := range res.Diagnostics {
					b, _ := json.Marshal(rec)
					fmt.Fprintln(cmd.ErrOrStderr(), string(b))
				}
			}
			if res.Failed() {
				return &exitCodeError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON input (default null)")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "read JSON input from file, - for stdin")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run")
	cmd.Flags().BoolVar(&showDiag, "diagnostics", false, "print the runner's diagnostic records to stderr")
	return cmd
}

func readInput(input, file string) (json.RawMessage, error) {
	if input != "" && file != "" {
		return nil, errors.New("--input and --input-file are mutually exclusive")
	}

	var raw []byte
	switch {
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		raw = b
	case input != "":
		raw = []byte(input)
	default:
		return json.RawMessage("null"), nil
	}

	if !json.Valid(raw) {
		return nil, errors.New("input is not valid JSON")
	}
	return raw, nil
}
