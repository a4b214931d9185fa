// Package report formats benchmark results into comparison tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/gas"
	"github.com/weiihann/sigbench/harness"
)

// Generate writes a markdown comparison of result to w.
func Generate(w io.Writer, result *harness.Result) error {
	if result == nil || (len(result.Algorithms) == 0 && len(result.Batches) == 0) {
		return fmt.Errorf("no results to report")
	}

	ids := orderedIDs(result)

	// Header.
	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run `%s` at %s, %d iterations, seed %d\n",
		result.RunID,
		result.Timestamp.Format("2006-01-02 15:04:05 MST"),
		result.Config.Iterations,
		result.Config.Seed,
	)
	fmt.Fprintln(w)

	if len(result.Algorithms) > 0 {
		writeTiming(w, result, ids)
		writeSizes(w, result, ids)
	}

	writeGas(w, result, ids)
	writeBatches(w, result, ids)
	writeWarnings(w, result, ids)

	return nil
}

// GenerateJSON writes result as JSON to w.
func GenerateJSON(w io.Writer, result *harness.Result) error {
	return encodeJSON(w, result)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// ReadJSON decodes a result document. Documents without a run id get one
// derived from their content, so the same file always reports the same id.
func ReadJSON(r io.Reader) (*harness.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var result harness.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	if result.RunID == "" {
		result.RunID = uuid.NewSHA1(uuid.NameSpaceOID, data).String()
	}

	if result.Algorithms == nil {
		result.Algorithms = make(map[string]harness.AlgorithmResult)
	}

	return &result, nil
}

func writeTiming(w io.Writer, result *harness.Result, ids []string) {
	fastest := findFastest(result, ids)

	fmt.Fprintln(w, "### Timing (mean ± std dev)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Algorithm | Family | Level | Keygen | Sign "+
		"| Verify | Sign vs Fastest |")
	fmt.Fprintln(w, "|-----------|--------|-------|--------|------"+
		"|--------|-----------------|")

	for _, id := range ids {
		r, ok := result.Algorithms[id]
		if !ok {
			continue
		}

		sign := r.Operations[harness.OpSign]

		slowdown := "-"
		if fastest > 0 && sign.Count > 0 {
			slowdown = fmt.Sprintf("%.2fx", sign.Mean/fastest)
		}

		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
			id,
			r.Family,
			algorithm.FormatLevel(r.SecurityLevel),
			formatSummary(r.Operations[harness.OpKeygen]),
			formatSummary(sign),
			formatSummary(r.Operations[harness.OpVerify]),
			slowdown,
		)
	}

	fmt.Fprintln(w)
}

func writeSizes(w io.Writer, result *harness.Result, ids []string) {
	fmt.Fprintln(w, "| Algorithm | Public Key | Secret Key | Signature |")
	fmt.Fprintln(w, "|-----------|------------|------------|-----------|")

	for _, id := range ids {
		r, ok := result.Algorithms[id]
		if !ok {
			continue
		}

		s := r.Sizes

		fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
			id,
			formatBytes(uint64(s.PublicKey)),
			formatBytes(uint64(s.SecretKey)),
			formatBytes(uint64(s.Signature)),
		)
	}

	fmt.Fprintln(w)
}

func writeGas(w io.Writer, result *harness.Result, ids []string) {
	if !result.GasStage.Enabled && result.GasStage.DisabledReason != "" {
		fmt.Fprintf(w, "Gas: **disabled** (%s)\n", result.GasStage.DisabledReason)
		fmt.Fprintln(w)
	}

	if len(result.Gas) == 0 {
		return
	}

	fmt.Fprintln(w, "### Gas")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Algorithm | Operation | Gas Used | Status | Payload | Cost (wei) |")
	fmt.Fprintln(w, "|-----------|-----------|----------|--------|---------|------------|")

	for _, id := range ids {
		for _, rec := range result.Gas[id] {
			cost := rec.CostWei
			if cost == "" {
				cost = "-"
			}

			fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s |\n",
				id,
				rec.Operation,
				rec.GasUsed,
				rec.Status,
				formatBytes(uint64(rec.PayloadBytes)),
				cost,
			)
		}

		if len(result.Gas[id]) > 0 {
			fmt.Fprintf(w, "| %s | **total** | %d | | | |\n", id, totalGas(result, id))
		}
	}

	fmt.Fprintln(w)
}

// totalGas prefers the stored total; documents written before totals were
// recorded are summed from their records.
func totalGas(result *harness.Result, id string) uint64 {
	if total, ok := result.GasTotal[id]; ok {
		return total
	}

	return gas.TotalGas(result.Gas[id])
}

func writeBatches(w io.Writer, result *harness.Result, ids []string) {
	if len(result.Batches) == 0 {
		return
	}

	fmt.Fprintln(w, "### Scalability (ops/s)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Algorithm | Batch | Workers | Keygen | Sign | Verify | Failures "+
		"| Sign Latency | Verify Latency |")
	fmt.Fprintln(w, "|-----------|-------|---------|--------|------|--------|----------"+
		"|--------------|----------------|")

	for _, id := range ids {
		for _, b := range result.Batches[id] {
			fmt.Fprintf(w, "| %s | %d | %d | %.1f | %.1f | %.1f | %d | %s | %s |\n",
				id,
				b.BatchSize,
				b.Parallelism,
				b.Keygen.Throughput,
				b.Sign.Throughput,
				b.Verify.Throughput,
				b.Failures,
				formatSummary(b.Sign.Latency),
				formatSummary(b.Verify.Latency),
			)
		}
	}

	fmt.Fprintln(w)
}

func writeWarnings(w io.Writer, result *harness.Result, ids []string) {
	header := false

	for _, id := range ids {
		for _, warning := range result.Algorithms[id].Warnings {
			if !header {
				fmt.Fprintln(w, "### Warnings")
				fmt.Fprintln(w)
				header = true
			}

			fmt.Fprintf(w, "  - %s: %s\n", id, warning)
		}
	}
}

// orderedIDs returns algorithm ids in run order. Documents that lost their
// config fall back to sorted ids.
func orderedIDs(result *harness.Result) []string {
	present := make(map[string]struct{}, len(result.Algorithms))
	for id := range result.Algorithms {
		present[id] = struct{}{}
	}
	for id := range result.Batches {
		present[id] = struct{}{}
	}

	ids := make([]string, 0, len(present))
	for _, id := range result.Config.Algorithms {
		if _, ok := present[id]; ok {
			ids = append(ids, id)
		}
	}

	if len(ids) == len(present) {
		return ids
	}

	ids = ids[:0]
	for id := range present {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

func findFastest(result *harness.Result, ids []string) float64 {
	fastest := math.MaxFloat64
	for _, id := range ids {
		sign := result.Algorithms[id].Operations[harness.OpSign]
		if sign.Count > 0 && sign.Mean > 0 && sign.Mean < fastest {
			fastest = sign.Mean
		}
	}

	if fastest == math.MaxFloat64 {
		return 0
	}

	return fastest
}

func formatSummary(s harness.Summary) string {
	if s.Count == 0 {
		return "-"
	}

	return formatSeconds(s.Mean) + " ± " + formatSeconds(s.StdDev)
}

func formatSeconds(seconds float64) string {
	if seconds < 1 {
		return fmt.Sprintf("%.3fms", seconds*1000)
	}

	return fmt.Sprintf("%.2fs", seconds)
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
