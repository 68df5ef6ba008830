package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	_ "github.com/jdziat/protoflow/internal/library"
)

func main() {
	os.Exit(submain(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// exitCodeError carries a command's exit status without an error message.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func submain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args = applyArgv0Alias(args)
	root := newRootCmd()
	root.SetArgs(args[1:])
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "protoflow: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "protoflow",
		Short:         "Run functions out of process over a one-shot socket protocol",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	root.AddCommand(newRuntimeCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newFunctionsCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newConfigCmd())

	return root
}

func argv0Alias(base string) string {
	switch base {
	case "protoflow-runtime", "pfrt":
		return "runtime"
	default:
		return ""
	}
}

func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if alias == "" {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], alias)
	out = append(out, args[1:]...)
	return out
}
