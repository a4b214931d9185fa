// Package workload generates deterministic messages and key-generation
// entropy for signature benchmarks. Every Generator is derived from a single
// seed so a run can be reproduced exactly.
package workload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	mrand "math/rand"

	"github.com/zeebo/blake3"
)

// DefaultMessage is the fixed payload signed by the per-operation sampler.
var DefaultMessage = append(
	[]byte("Benchmark test message for research paper analysis"),
	bytes.Repeat([]byte("x"), 100)...,
)

// DefaultMessageSize is the length of generated batch messages.
const DefaultMessageSize = 64

// Config controls generation parameters.
type Config struct {
	Seed        int64
	MessageSize int
}

// Generator produces deterministic messages and entropy from a Config.
// A Generator is not safe for concurrent use; derive one per goroutine.
type Generator struct {
	cfg     Config
	rng     *mrand.Rand
	entropy *blake3.Digest
	count   int
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	if cfg.MessageSize <= 0 {
		cfg.MessageSize = DefaultMessageSize
	}

	h := blake3.New()
	h.Write([]byte("sigbench/entropy"))
	h.Write(seedBytes(cfg.Seed))

	return &Generator{
		cfg:     cfg,
		rng:     mrand.New(mrand.NewSource(cfg.Seed)),
		entropy: h.Digest(),
	}
}

// Seed returns the generator's seed.
func (g *Generator) Seed() int64 {
	return g.cfg.Seed
}

// Message returns the next message. Each message carries its sequence
// number so no two messages from one generator are equal.
func (g *Generator) Message() []byte {
	g.count++

	prefix := fmt.Sprintf("sigbench message %d ", g.count)

	size := max(g.cfg.MessageSize, len(prefix))
	buf := make([]byte, size)
	copy(buf, prefix)
	g.rng.Read(buf[len(prefix):])

	return buf
}

// Entropy returns the generator's key-generation randomness stream.
func (g *Generator) Entropy() io.Reader {
	return g.entropy
}

// Derive returns an independently seeded child generator. The same
// (label, index) pair always yields the same child for a given parent seed.
func (g *Generator) Derive(label string, index int) *Generator {
	h := blake3.New()
	h.Write(seedBytes(g.cfg.Seed))
	h.Write([]byte(label))

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	h.Write(idx[:])

	sum := h.Sum(nil)

	return NewGenerator(Config{
		Seed:        int64(binary.BigEndian.Uint64(sum[:8])),
		MessageSize: g.cfg.MessageSize,
	})
}

func seedBytes(seed int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))

	return buf[:]
}
