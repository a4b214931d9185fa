package harness

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptySampleSet is returned when no sample in a set succeeded.
var ErrEmptySampleSet = errors.New("no successful samples")

// Summary describes the successful samples of one operation, in seconds.
type Summary struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Summarize reduces samples to a Summary. Durations are sorted before any
// arithmetic, so reordering the input yields an identical result. StdDev is
// the population standard deviation.
func Summarize(samples []Sample) (Summary, error) {
	durations := make([]float64, 0, len(samples))
	failures := 0

	for _, s := range samples {
		if s.Failed() {
			failures++

			continue
		}

		durations = append(durations, s.Seconds)
	}

	if len(durations) == 0 {
		return Summary{Failures: failures}, ErrEmptySampleSet
	}

	slices.Sort(durations)

	mean, variance := stat.PopMeanVariance(durations, nil)

	return Summary{
		Count:    len(durations),
		Failures: failures,
		Mean:     mean,
		Median:   median(durations),
		StdDev:   math.Sqrt(max(variance, 0)),
		Min:      floats.Min(durations),
		Max:      floats.Max(durations),
	}, nil
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}
