package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/sigbench/report"
)

func newReportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <result.json>",
		Short: "Render a saved result document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open result: %w", err)
			}
			defer f.Close()

			result, err := report.ReadJSON(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			if path := v.GetString("metrics-file"); path != "" {
				if err := report.WriteMetrics(path, result); err != nil {
					return err
				}
			}

			if v.GetBool("json") {
				return report.GenerateJSON(cmd.OutOrStdout(), result)
			}

			return report.Generate(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Bool("json", false,
		"Print the document as JSON instead of markdown")
	cmd.Flags().String("metrics-file", "",
		"Also write Prometheus textfile metrics to this path")

	return cmd
}
