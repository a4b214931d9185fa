package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/sigbench/backend"
	"github.com/weiihann/sigbench/chain"
	"github.com/weiihann/sigbench/gas"
	"github.com/weiihann/sigbench/harness"
	"github.com/weiihann/sigbench/report"
)

func newRunCmd(logger *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Benchmark signature algorithms",
		Long: `Sample key generation, signing and verification for each selected
algorithm, optionally measure on-chain gas, and optionally run the batch
scalability stage. The result document is written to --out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}

			return runBenchmark(cmd.Context(), logger, v)
		},
	}

	defaults := harness.DefaultRunConfig()
	chainDefaults := chain.DefaultConfig()

	flags := cmd.Flags()
	flags.StringSlice("algorithms", nil,
		"Algorithms to benchmark (default: all registered)")
	flags.Int("iterations", defaults.Iterations,
		"Samples per operation")
	flags.Bool("gas", false,
		"Measure on-chain gas for key registration and signature logging")
	flags.String("rpc-url", chainDefaults.RPCURL,
		"JSON-RPC endpoint of the chain")
	flags.String("contract", "",
		"Address of the deployed key registry contract")
	flags.String("private-key", "",
		"Hex private key of the submitting account (prefer SIGBENCH_PRIVATE_KEY)")
	flags.Duration("receipt-timeout", chainDefaults.ReceiptTimeout,
		"How long to wait for a transaction to be mined")
	addBatchFlags(cmd, defaults)
	addOutputFlags(cmd)

	return cmd
}

func addBatchFlags(cmd *cobra.Command, defaults harness.RunConfig) {
	flags := cmd.Flags()
	flags.Bool("batch", false,
		"Run the batch scalability stage after the core measurements")
	flags.IntSlice("batch-sizes", defaults.BatchSizes,
		"Strictly increasing batch sizes")
	flags.Int("parallel", defaults.Parallelism,
		"Workers per batch")
	flags.Int64("seed", 0,
		"Random seed (0 = use current time)")
}

func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("out", "",
		"Result file (default: data/benchmarks/benchmark_<timestamp>.json)")
	flags.Bool("json", false,
		"Print results as JSON instead of markdown")
	flags.String("metrics-file", "",
		"Also write Prometheus textfile metrics to this path")
}

func runConfigFrom(v *viper.Viper) (harness.RunConfig, error) {
	sizes, err := intList(v, "batch-sizes")
	if err != nil {
		return harness.RunConfig{}, err
	}

	return harness.RunConfig{
		Algorithms:  stringList(v, "algorithms"),
		Iterations:  v.GetInt("iterations"),
		Gas:         v.GetBool("gas"),
		Batch:       v.GetBool("batch"),
		BatchSizes:  sizes,
		Parallelism: v.GetInt("parallel"),
		Seed:        v.GetInt64("seed"),
	}, nil
}

// stringList reads key as a list. Flags arrive split already; env and config
// values may be one comma or space separated string.
func stringList(v *viper.Viper, key string) []string {
	var out []string

	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

func intList(v *viper.Viper, key string) ([]int, error) {
	items := stringList(v, key)
	if len(items) == 0 {
		return nil, nil
	}

	out := make([]int, 0, len(items))

	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", key, item)
		}
		out = append(out, n)
	}

	return out, nil
}

func runBenchmark(ctx context.Context, logger *slog.Logger, v *viper.Viper) error {
	cfg, err := runConfigFrom(v)
	if err != nil {
		return err
	}

	reg, err := backend.NewRegistry()
	if err != nil {
		return fmt.Errorf("register backends: %w", err)
	}

	var (
		meter     harness.GasMeter
		gasReason string
	)

	if cfg.Gas {
		m, closeFn, err := newMeter(ctx, logger, v)

		switch {
		case errors.Is(err, gas.ErrChainUnavailable):
			logger.WarnContext(ctx, "chain unavailable, gas stage disabled",
				slog.String("rpc_url", v.GetString("rpc-url")),
				slog.String("error", err.Error()),
			)
			gasReason = err.Error()
		case err != nil:
			return err
		default:
			defer closeFn()
			meter = m
		}
	}

	runner := harness.NewRunner(reg, meter, logger)

	result, err := runner.Run(ctx, cfg)
	if result == nil {
		return fmt.Errorf("run: %w", err)
	}

	if gasReason != "" {
		result.GasStage.DisabledReason = gasReason
	}

	if writeErr := writeOutputs(ctx, logger, v, result); writeErr != nil {
		return writeErr
	}

	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	logger.InfoContext(ctx, "benchmark complete", slog.String("run_id", result.RunID))

	return nil
}

func newMeter(
	ctx context.Context,
	logger *slog.Logger,
	v *viper.Viper,
) (*gas.Meter, func(), error) {
	contract := v.GetString("contract")
	if !common.IsHexAddress(contract) {
		return nil, nil, errMissingContract
	}

	cfg := chain.DefaultConfig()
	cfg.RPCURL = v.GetString("rpc-url")
	cfg.PrivateKey = v.GetString("private-key")
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, nil, errMissingKey
	}
	cfg.ReceiptTimeout = v.GetDuration("receipt-timeout")

	client, err := chain.Dial(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	meter, err := gas.NewMeter(client, common.HexToAddress(contract), logger)
	if err != nil {
		client.Close()

		return nil, nil, err
	}

	return meter, client.Close, nil
}

// writeOutputs persists result and prints it. It runs for interrupted runs
// too, so partial results are never lost.
func writeOutputs(
	ctx context.Context,
	logger *slog.Logger,
	v *viper.Viper,
	result *harness.Result,
) error {
	out := v.GetString("out")
	if out == "" {
		out = filepath.Join("data", "benchmarks",
			fmt.Sprintf("benchmark_%s.json", result.Timestamp.Format("20060102_150405")))
	}

	if err := saveDocument(out, result); err != nil {
		return err
	}

	logger.InfoContext(ctx, "results saved", slog.String("path", out))

	if path := v.GetString("metrics-file"); path != "" {
		if err := report.WriteMetrics(path, result); err != nil {
			return err
		}
	}

	if len(result.Algorithms) == 0 && len(result.Batches) == 0 {
		return nil
	}

	if v.GetBool("json") {
		if err := report.GenerateJSON(os.Stdout, result); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	if err := report.Generate(os.Stdout, result); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return nil
}

// saveDocument writes doc as indented JSON, creating parent directories.
func saveDocument(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		f.Close()

		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
