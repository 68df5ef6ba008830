package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jdziat/protoflow/pkg/registry"
)

func newFunctionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "functions",
		Aliases: []string{"fn"},
		Short:   "List the functions this binary can run",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fns := registry.Default.Describe()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(fns)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IMPORT PATH\tFUNCTION\tARG\tRESULT")
			for _, fn := range fns {
				result := fn.ResultType
				if result == "" {
					result = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fn.ImportPath, fn.FunctionName, fn.ArgType, result)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
