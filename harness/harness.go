package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/gas"
	"github.com/weiihann/sigbench/workload"
)

// DefaultIterations is the number of samples per operation.
const DefaultIterations = 30

var ErrInvalidIterations = errors.New("iterations must be at least 1")

// RunConfig holds parameters for a single benchmark run.
type RunConfig struct {
	Algorithms  []string `json:"algorithms"`
	Iterations  int      `json:"iterations"`
	Gas         bool     `json:"gas"`
	Batch       bool     `json:"batch"`
	BatchSizes  []int    `json:"batch_sizes,omitempty"`
	Parallelism int      `json:"parallelism"`
	Seed        int64    `json:"seed"`
}

// DefaultRunConfig returns the configuration used when no flags are given.
// An empty algorithm list selects every registered algorithm.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Iterations:  DefaultIterations,
		BatchSizes:  DefaultBatchSizes(),
		Parallelism: 1,
	}
}

// GasMeter measures on-chain cost. *gas.Meter implements it.
type GasMeter interface {
	MeasureRegistration(ctx context.Context, algorithm string, publicKey []byte) (gas.Record, error)
	MeasureSignatureLog(ctx context.Context, algorithm string, signature, message []byte) (gas.Record, error)
}

// Runner sequences every measurement stage of a run.
type Runner struct {
	Registry *algorithm.Registry
	Meter    GasMeter
	Logger   *slog.Logger
}

// NewRunner creates a Runner. meter may be nil, in which case a run that asks
// for gas records the stage as disabled.
func NewRunner(reg *algorithm.Registry, meter GasMeter, logger *slog.Logger) *Runner {
	return &Runner{
		Registry: reg,
		Meter:    meter,
		Logger:   logger,
	}
}

// Run executes cfg. Configuration errors are returned before anything is
// measured. Measurement failures are recorded in the result. On cancellation
// the partial result is returned along with the context error.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	cfg, err := r.resolve(cfg)
	if err != nil {
		return nil, err
	}

	result := newResult(cfg)

	if cfg.Gas && r.Meter == nil {
		result.GasStage = GasStage{DisabledReason: "no chain client configured"}
	}

	root := workload.NewGenerator(workload.Config{Seed: cfg.Seed})

	r.Logger.InfoContext(ctx, "starting run",
		slog.String("run_id", result.RunID),
		slog.Int("algorithms", len(cfg.Algorithms)),
		slog.Int("iterations", cfg.Iterations),
		slog.Int64("seed", cfg.Seed),
	)

	for i, id := range cfg.Algorithms {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		spec, _ := r.Registry.Resolve(id)
		r.runAlgorithm(ctx, spec, root.Derive("sample", i), cfg, result)
	}

	if cfg.Batch {
		if err := r.runBatches(ctx, root, cfg, result); err != nil {
			return result, err
		}
	}

	r.Logger.InfoContext(ctx, "run finished", slog.String("run_id", result.RunID))

	return result, nil
}

// RunScalability runs only the batch stage of cfg. Gas and per-operation
// sampling are skipped.
func (r *Runner) RunScalability(ctx context.Context, cfg RunConfig) (*Result, error) {
	cfg.Batch = true
	cfg.Gas = false

	cfg, err := r.resolve(cfg)
	if err != nil {
		return nil, err
	}

	result := newResult(cfg)
	root := workload.NewGenerator(workload.Config{Seed: cfg.Seed})

	r.Logger.InfoContext(ctx, "starting scalability run",
		slog.String("run_id", result.RunID),
		slog.Any("batch_sizes", cfg.BatchSizes),
		slog.Int("parallelism", cfg.Parallelism),
	)

	if err := r.runBatches(ctx, root, cfg, result); err != nil {
		return result, err
	}

	return result, nil
}

func newResult(cfg RunConfig) *Result {
	return &Result{
		RunID:      uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Config:     cfg,
		Algorithms: make(map[string]AlgorithmResult, len(cfg.Algorithms)),
		GasStage:   GasStage{Enabled: cfg.Gas},
	}
}

// resolve validates cfg and fills its defaults.
func (r *Runner) resolve(cfg RunConfig) (RunConfig, error) {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = r.Registry.IDs()
	}

	seen := make(map[string]struct{}, len(cfg.Algorithms))
	for _, id := range cfg.Algorithms {
		if _, err := r.Registry.Resolve(id); err != nil {
			return cfg, err
		}

		if _, dup := seen[id]; dup {
			return cfg, fmt.Errorf("%w: %q requested twice", algorithm.ErrDuplicateAlgorithm, id)
		}
		seen[id] = struct{}{}
	}

	if cfg.Iterations < 1 {
		return cfg, fmt.Errorf("%w: %d", ErrInvalidIterations, cfg.Iterations)
	}

	if cfg.Batch {
		if len(cfg.BatchSizes) == 0 {
			cfg.BatchSizes = DefaultBatchSizes()
		}

		if err := ValidateBatchSizes(cfg.BatchSizes); err != nil {
			return cfg, err
		}

		if cfg.Parallelism < 1 {
			return cfg, fmt.Errorf("%w: %d", ErrInvalidDegree, cfg.Parallelism)
		}
	}

	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return cfg, nil
}

func (r *Runner) runAlgorithm(
	ctx context.Context,
	spec algorithm.Spec,
	gen *workload.Generator,
	cfg RunConfig,
	result *Result,
) {
	logger := r.Logger.With(slog.String("algorithm", spec.ID))
	sampler := NewSampler(workload.DefaultMessage, gen.Entropy())

	res := AlgorithmResult{
		Algorithm:     spec.ID,
		Family:        spec.Family,
		SecurityLevel: spec.SecurityLevel,
		Operations:    make(map[Operation]Summary, len(Operations)),
	}

	keygen := sampler.Keygen(spec, cfg.Iterations)
	sign, pairs := sampler.Sign(spec, cfg.Iterations)
	verify := sampler.Verify(spec, pairs)

	samples := map[Operation][]Sample{
		OpKeygen: keygen,
		OpSign:   sign,
		OpVerify: verify,
	}

	for _, op := range Operations {
		summary, err := Summarize(samples[op])
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", op, err))
		}
		res.Operations[op] = summary
	}

	pair, ok := firstValid(pairs)
	if ok {
		res.Sizes = Sizes{
			PublicKey: len(pair.Keypair.PublicKey),
			SecretKey: len(pair.Keypair.SecretKey),
			Signature: len(pair.Signature),
			Message:   len(pair.Message),
		}
	}

	logger.InfoContext(ctx, "algorithm measured",
		slog.Float64("keygen_mean_ms", res.Operations[OpKeygen].Mean*1000),
		slog.Float64("sign_mean_ms", res.Operations[OpSign].Mean*1000),
		slog.Float64("verify_mean_ms", res.Operations[OpVerify].Mean*1000),
		slog.Int("signature_bytes", res.Sizes.Signature),
	)

	switch {
	case !result.GasStage.Enabled:
	case !ok:
		res.Warnings = append(res.Warnings, "gas: no valid signature to submit")
	default:
		r.measureGas(ctx, logger, spec.ID, pair, &res, result)
	}

	result.Algorithms[spec.ID] = res
}

func (r *Runner) measureGas(
	ctx context.Context,
	logger *slog.Logger,
	id string,
	pair SignedPair,
	res *AlgorithmResult,
	result *Result,
) {
	records := make([]gas.Record, 0, 2)

	steps := []func() (gas.Record, error){
		func() (gas.Record, error) {
			return r.Meter.MeasureRegistration(ctx, id, pair.Keypair.PublicKey)
		},
		func() (gas.Record, error) {
			return r.Meter.MeasureSignatureLog(ctx, id, pair.Signature, pair.Message)
		},
	}

	for _, step := range steps {
		rec, err := step()
		if errors.Is(err, gas.ErrChainUnavailable) {
			logger.WarnContext(ctx, "chain unavailable, disabling gas stage",
				slog.String("error", err.Error()),
			)
			result.GasStage = GasStage{DisabledReason: err.Error()}

			break
		}

		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("gas: %v", err))

			continue
		}

		records = append(records, rec)
	}

	if len(records) == 0 {
		return
	}

	if result.Gas == nil {
		result.Gas = make(map[string][]gas.Record)
		result.GasTotal = make(map[string]uint64)
	}
	result.Gas[id] = records
	result.GasTotal[id] = gas.TotalGas(records)
}

func (r *Runner) runBatches(
	ctx context.Context,
	root *workload.Generator,
	cfg RunConfig,
	result *Result,
) error {
	runner := NewBatchRunner(r.Registry, root.Derive("batch", 0), r.Logger)
	result.Batches = make(map[string][]BatchResult, len(cfg.Algorithms))

	for _, id := range cfg.Algorithms {
		batches, err := runner.Run(ctx, id, cfg.BatchSizes, cfg.Parallelism)
		if len(batches) > 0 {
			result.Batches[id] = batches
		}

		if err != nil {
			return fmt.Errorf("batch %s: %w", id, err)
		}
	}

	return nil
}

func firstValid(pairs []SignedPair) (SignedPair, bool) {
	for _, p := range pairs {
		if p.Err == nil {
			return p, true
		}
	}

	return SignedPair{}, false
}
