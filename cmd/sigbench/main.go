// Package main provides the CLI entry point for sigbench, a classical and
// post-quantum signature benchmarking tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SIGBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var configFile string

	root := &cobra.Command{
		Use:   "sigbench",
		Short: "Classical and post-quantum signature benchmarking tool",
		Long: `Sigbench measures key generation, signing and verification for
classical and post-quantum signature schemes, the gas cost of registering keys
and logging signatures on an EVM chain, and batch throughput as the batch size
and worker count grow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configFile == "" {
				return nil
			}

			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (yaml, toml or json); flags and SIGBENCH_* env override it")

	root.AddCommand(
		newRunCmd(logger, v),
		newBatchCmd(logger, v),
		newReportCmd(v),
		newVerifyCmd(logger, v),
		newAlgorithmsCmd(),
	)

	return root
}

// bindFlags makes cmd's flags readable through v, after env and config.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	return nil
}

var (
	errMissingContract = errors.New("--contract must be a hex address")
	errMissingKey      = errors.New("--private-key (or SIGBENCH_PRIVATE_KEY) is required to submit transactions")
)
