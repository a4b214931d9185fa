package report

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weiihann/sigbench/harness"
)

// WriteMetrics writes result to path in the Prometheus text exposition
// format, for pickup by a node exporter textfile collector.
func WriteMetrics(path string, result *harness.Result) error {
	reg := prometheus.NewRegistry()

	runInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_run_info",
		Help: "Benchmark run metadata.",
	}, []string{"run_id", "seed"})

	opSeconds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_operation_seconds",
		Help: "Per-operation timing statistics in seconds.",
	}, []string{"algorithm", "operation", "stat"})

	opFailures := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_operation_failures",
		Help: "Failed samples per operation.",
	}, []string{"algorithm", "operation"})

	sizes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_encoded_bytes",
		Help: "Encoded key and signature sizes in bytes.",
	}, []string{"algorithm", "kind"})

	gasUsed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_gas_used",
		Help: "Gas consumed per on-chain operation.",
	}, []string{"algorithm", "operation", "status"})

	gasTotal := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_gas_total",
		Help: "Registration plus signature logging gas per algorithm.",
	}, []string{"algorithm"})

	throughput := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_batch_throughput",
		Help: "Batch throughput in operations per second.",
	}, []string{"algorithm", "batch_size", "parallelism", "phase"})

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigbench_batch_latency_seconds",
		Help: "Per-item latency inside batch workers in seconds.",
	}, []string{"algorithm", "batch_size", "parallelism", "phase", "stat"})

	reg.MustRegister(runInfo, opSeconds, opFailures, sizes, gasUsed, gasTotal, throughput, latency)

	runInfo.WithLabelValues(result.RunID, strconv.FormatInt(result.Config.Seed, 10)).Set(1)

	for id, r := range result.Algorithms {
		for op, s := range r.Operations {
			opFailures.WithLabelValues(id, string(op)).Set(float64(s.Failures))

			if s.Count == 0 {
				continue
			}

			for stat, v := range map[string]float64{
				"mean":    s.Mean,
				"median":  s.Median,
				"std_dev": s.StdDev,
				"min":     s.Min,
				"max":     s.Max,
			} {
				opSeconds.WithLabelValues(id, string(op), stat).Set(v)
			}
		}

		sizes.WithLabelValues(id, "public_key").Set(float64(r.Sizes.PublicKey))
		sizes.WithLabelValues(id, "secret_key").Set(float64(r.Sizes.SecretKey))
		sizes.WithLabelValues(id, "signature").Set(float64(r.Sizes.Signature))
	}

	for id, records := range result.Gas {
		for _, rec := range records {
			gasUsed.WithLabelValues(id, string(rec.Operation), string(rec.Status)).
				Set(float64(rec.GasUsed))
		}

		gasTotal.WithLabelValues(id).Set(float64(totalGas(result, id)))
	}

	for id, batches := range result.Batches {
		for _, b := range batches {
			size := strconv.Itoa(b.BatchSize)
			degree := strconv.Itoa(b.Parallelism)

			for phase, p := range map[string]harness.BatchPhase{
				"keygen": b.Keygen,
				"sign":   b.Sign,
				"verify": b.Verify,
			} {
				throughput.WithLabelValues(id, size, degree, phase).Set(p.Throughput)

				if p.Latency.Count == 0 {
					continue
				}

				latency.WithLabelValues(id, size, degree, phase, "mean").Set(p.Latency.Mean)
				latency.WithLabelValues(id, size, degree, phase, "median").Set(p.Latency.Median)
				latency.WithLabelValues(id, size, degree, phase, "max").Set(p.Latency.Max)
			}
		}
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}

	return nil
}
