package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/sigbench/backend"
	"github.com/weiihann/sigbench/harness"
)

func newBatchCmd(logger *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run only the batch scalability stage",
		Long: `Measure keygen, sign and verify throughput for each selected
algorithm across increasing batch sizes, splitting every batch across
--parallel workers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}

			return runScalability(cmd.Context(), logger, v)
		},
	}

	cmd.Flags().StringSlice("algorithms", nil,
		"Algorithms to benchmark (default: all registered)")
	addBatchFlags(cmd, harness.DefaultRunConfig())
	addOutputFlags(cmd)

	return cmd
}

func runScalability(ctx context.Context, logger *slog.Logger, v *viper.Viper) error {
	cfg, err := runConfigFrom(v)
	if err != nil {
		return err
	}
	cfg.Iterations = harness.DefaultIterations

	reg, err := backend.NewRegistry()
	if err != nil {
		return fmt.Errorf("register backends: %w", err)
	}

	result, err := harness.NewRunner(reg, nil, logger).RunScalability(ctx, cfg)
	if result == nil {
		return fmt.Errorf("batch: %w", err)
	}

	if writeErr := writeOutputs(ctx, logger, v, result); writeErr != nil {
		return writeErr
	}

	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	return nil
}
