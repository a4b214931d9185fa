package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/workload"
)

var (
	ErrInvalidBatchSizes = errors.New("batch sizes must be positive and strictly increasing")
	ErrInvalidDegree     = errors.New("parallel degree must be at least 1")
)

// DefaultBatchSizes returns 1, 2, 4, ..., 2048.
func DefaultBatchSizes() []int {
	sizes := make([]int, 0, 12)
	for b := 1; b <= 2048; b *= 2 {
		sizes = append(sizes, b)
	}

	return sizes
}

// ValidateBatchSizes checks that sizes is non-empty, positive and strictly
// increasing.
func ValidateBatchSizes(sizes []int) error {
	if len(sizes) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidBatchSizes)
	}

	prev := 0
	for _, b := range sizes {
		if b <= prev {
			return fmt.Errorf("%w: %v", ErrInvalidBatchSizes, sizes)
		}
		prev = b
	}

	return nil
}

// Span is a half-open item range [Start, End) owned by one worker.
type Span struct {
	Start int
	End   int
}

// Len returns the number of items in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Partition splits n items across degree workers. The first n mod degree
// workers receive one extra item. Workers beyond n get empty spans.
func Partition(n, degree int) []Span {
	if degree < 1 {
		degree = 1
	}

	spans := make([]Span, degree)
	base, extra := n/degree, n%degree

	start := 0
	for w := range spans {
		size := base
		if w < extra {
			size++
		}
		spans[w] = Span{Start: start, End: start + size}
		start += size
	}

	return spans
}

// BatchPhase is the timing of one phase of a batch: the wall clock across
// all workers and the latency of each item inside its worker.
type BatchPhase struct {
	Seconds    float64 `json:"seconds"`
	Throughput float64 `json:"throughput"`
	Failures   int     `json:"failures"`
	Latency    Summary `json:"latency"`
}

// BatchResult holds one batch size's measurements for an algorithm.
type BatchResult struct {
	Algorithm   string     `json:"algorithm"`
	BatchSize   int        `json:"batch_size"`
	Parallelism int        `json:"parallelism"`
	Keygen      BatchPhase `json:"keygen"`
	Sign        BatchPhase `json:"sign"`
	Verify      BatchPhase `json:"verify"`
	Failures    int        `json:"failures"`
}

type batchItem struct {
	message   []byte
	keypair   algorithm.Keypair
	signature []byte
	failed    bool
}

// BatchRunner measures throughput across increasing batch sizes.
type BatchRunner struct {
	Registry  *algorithm.Registry
	Generator *workload.Generator
	Logger    *slog.Logger
}

// NewBatchRunner creates a BatchRunner. Worker generators are derived from
// gen, so a fixed seed reproduces every batch.
func NewBatchRunner(
	reg *algorithm.Registry,
	gen *workload.Generator,
	logger *slog.Logger,
) *BatchRunner {
	return &BatchRunner{
		Registry:  reg,
		Generator: gen,
		Logger:    logger,
	}
}

// Run measures id at every batch size in order, splitting each batch across
// degree workers. On cancellation the completed batch sizes are returned with
// the context error; a partially run batch is discarded.
func (r *BatchRunner) Run(
	ctx context.Context,
	id string,
	sizes []int,
	degree int,
) ([]BatchResult, error) {
	spec, err := r.Registry.Resolve(id)
	if err != nil {
		return nil, err
	}

	if err := ValidateBatchSizes(sizes); err != nil {
		return nil, err
	}

	if degree < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, degree)
	}

	logger := r.Logger.With(slog.String("algorithm", id))
	results := make([]BatchResult, 0, len(sizes))

	for _, size := range sizes {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.runBatch(ctx, spec, size, degree)
		if err != nil {
			return results, err
		}

		logger.InfoContext(ctx, "batch complete",
			slog.Int("batch_size", size),
			slog.Int("parallelism", degree),
			slog.Float64("sign_ops_per_sec", res.Sign.Throughput),
			slog.Float64("verify_ops_per_sec", res.Verify.Throughput),
			slog.Float64("sign_latency_ms", res.Sign.Latency.Mean*1000),
			slog.Int("failures", res.Failures),
		)

		results = append(results, res)
	}

	return results, nil
}

func (r *BatchRunner) runBatch(
	ctx context.Context,
	spec algorithm.Spec,
	size, degree int,
) (BatchResult, error) {
	spans := Partition(size, degree)

	gens := make([]*workload.Generator, len(spans))
	for w := range gens {
		gens[w] = r.Generator.Derive(fmt.Sprintf("%s/%d", spec.ID, size), w)
	}

	items := prepareItems(spans, gens)

	keygen, err := runPhase(ctx, spans, items, func(w, i int) error {
		kp, err := spec.Backend.GenerateKeypair(gens[w].Entropy())
		items[i].keypair = kp

		return err
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("%s keygen: %w", spec.ID, err)
	}

	sign, err := runPhase(ctx, spans, items, func(_, i int) error {
		sig, err := spec.Backend.Sign(items[i].keypair.SecretKey, items[i].message)
		items[i].signature = sig

		return err
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("%s sign: %w", spec.ID, err)
	}

	verify, err := runPhase(ctx, spans, items, func(_, i int) error {
		it := items[i]
		if !spec.Backend.Verify(it.keypair.PublicKey, it.message, it.signature) {
			return ErrInvalidSignature
		}

		return nil
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("%s verify: %w", spec.ID, err)
	}

	failures := 0
	for i := range items {
		if items[i].failed {
			failures++
		}
	}

	return BatchResult{
		Algorithm:   spec.ID,
		BatchSize:   size,
		Parallelism: degree,
		Keygen:      keygen,
		Sign:        sign,
		Verify:      verify,
		Failures:    failures,
	}, nil
}

// prepareItems draws every item's message from its worker's generator, so
// message generation stays outside the timed phases.
func prepareItems(spans []Span, gens []*workload.Generator) []batchItem {
	items := make([]batchItem, spans[len(spans)-1].End)

	for w, span := range spans {
		for i := span.Start; i < span.End; i++ {
			items[i].message = gens[w].Message()
		}
	}

	return items
}

// runPhase runs fn over every item, one goroutine per span, and returns once
// all workers have joined. Each worker writes only to items inside its own
// span. A failed item is marked and skipped in every later phase; it never
// aborts the batch. Only cancellation does.
func runPhase(
	ctx context.Context,
	spans []Span,
	items []batchItem,
	fn func(worker, item int) error,
) (BatchPhase, error) {
	samples := make([][]Sample, len(spans))

	g, gctx := errgroup.WithContext(ctx)

	start := time.Now()

	for w, span := range spans {
		if span.Len() == 0 {
			continue
		}

		g.Go(func() error {
			samples[w] = make([]Sample, 0, span.Len())

			for i := span.Start; i < span.End; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}

				if items[i].failed {
					samples[w] = append(samples[w], Sample{Err: errMissingSignature})

					continue
				}

				seconds, err := timed(func() error { return fn(w, i) })
				if err != nil {
					items[i].failed = true
					samples[w] = append(samples[w], Sample{Err: err})

					continue
				}

				samples[w] = append(samples[w], Sample{Seconds: seconds})
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return BatchPhase{}, err
	}

	elapsed := time.Since(start).Seconds()

	// A phase where every item failed has no latency to report; Failures
	// still carries the count.
	latency, _ := Summarize(slices.Concat(samples...))

	phase := BatchPhase{
		Seconds:  elapsed,
		Failures: latency.Failures,
		Latency:  latency,
	}

	if elapsed > 0 {
		phase.Throughput = float64(len(items)) / elapsed
	}

	return phase, nil
}
