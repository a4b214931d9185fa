// Package harness measures signature algorithms: per-operation timing
// samples, their summaries, optional on-chain gas costs, and batch
// throughput across increasing batch sizes.
package harness

import (
	"time"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/gas"
)

// Result is the persisted document of one benchmark run. Field names are
// stable so runs can be diffed.
type Result struct {
	RunID      string                     `json:"run_id"`
	Timestamp  time.Time                  `json:"timestamp"`
	Config     RunConfig                  `json:"config"`
	Algorithms map[string]AlgorithmResult `json:"algorithms"`
	Gas        map[string][]gas.Record    `json:"gas,omitempty"`
	GasTotal   map[string]uint64          `json:"gas_total,omitempty"`
	GasStage   GasStage                   `json:"gas_stage"`
	Batches    map[string][]BatchResult   `json:"batches,omitempty"`
}

// GasStage records whether gas measurement ran and why it stopped.
type GasStage struct {
	Enabled        bool   `json:"enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
}

// Sizes are encoded lengths in bytes.
type Sizes struct {
	PublicKey int `json:"public_key"`
	SecretKey int `json:"secret_key"`
	Signature int `json:"signature"`
	Message   int `json:"message"`
}

// AlgorithmResult holds the core measurements for one algorithm.
type AlgorithmResult struct {
	Algorithm     string                `json:"algorithm"`
	Family        algorithm.Family      `json:"family"`
	SecurityLevel int                   `json:"security_level"`
	Sizes         Sizes                 `json:"sizes"`
	Operations    map[Operation]Summary `json:"operations"`
	Warnings      []string              `json:"warnings,omitempty"`
}
