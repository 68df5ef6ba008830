package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/storage"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and prune run history",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsPurgeCmd())
	cmd.AddCommand(newRunsStatsCmd())
	return cmd
}

// withStore opens run history for one command and closes it afterwards.
func withStore(cmd *cobra.Command, fn func(*storage.GormStorage) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	if store == nil {
		return errors.New("run history is disabled (run_db is empty)")
	}
	defer store.Close()
	return fn(store)
}

func newRunsListCmd() *cobra.Command {
	var (
		filter core.RunFilter
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch core.RunStatus(status) {
			case "", core.RunRunning, core.RunCompleted, core.RunFailed:
				filter.Status = core.RunStatus(status)
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			return withStore(cmd, func(store *storage.GormStorage) error {
				runs, err := store.ListRuns(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), runs)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFUNCTION\tSTATUS\tEXIT\tDURATION\tSTARTED")
				for _, run := range runs {
					key := core.FunctionKey{ImportPath: run.ImportPath, FunctionName: run.FunctionName}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						run.ID, key, run.Status, run.ExitCode,
						time.Duration(run.DurationMS)*time.Millisecond,
						run.StartedAt.Local().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&filter.ImportPath, "import-path", "", "only runs of this unit")
	cmd.Flags().StringVar(&filter.FunctionName, "function", "", "only runs of this function")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status: running, completed or failed")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *storage.GormStorage) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), run)
			})
		},
	}
}

func newRunsPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withStore(cmd, func(store *storage.GormStorage) error {
				n, err := store.PurgeRuns(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d runs\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}

func newRunsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show run counts per function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *storage.GormStorage) error {
				stats, err := store.FunctionStats(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FUNCTION\tRUNNING\tCOMPLETED\tFAILED")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.FunctionKey, s.Running, s.Completed, s.Failed)
				}
				return tw.Flush()
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
