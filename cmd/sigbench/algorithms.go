package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/backend"
)

func newAlgorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List registered algorithms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			fmt.Fprintln(w, "| Algorithm | Family | Level |")
			fmt.Fprintln(w, "|-----------|--------|-------|")

			for _, spec := range backend.Specs() {
				fmt.Fprintf(w, "| %s | %s | %s |\n",
					spec.ID, spec.Family, algorithm.FormatLevel(spec.SecurityLevel))
			}

			return nil
		},
	}
}
