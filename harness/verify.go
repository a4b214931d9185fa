package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/weiihann/sigbench/algorithm"
	"github.com/weiihann/sigbench/gas"
)

// SignatureSource reads logged signatures and keys back from the registry.
// *gas.Meter implements it.
type SignatureSource interface {
	LoggedSignatures(ctx context.Context, fromBlock uint64) ([]gas.LoggedSignature, error)
	LoggedKeys(ctx context.Context) ([]gas.LoggedKey, error)
	RegisteredKey(ctx context.Context, account common.Address) ([]byte, error)
}

const skippedNoKey = "no key registered for signer"

// Verification is the off-chain check of one logged signature.
type Verification struct {
	Signer         string  `json:"signer"`
	Block          uint64  `json:"block"`
	TxHash         string  `json:"tx_hash"`
	Algorithm      string  `json:"algorithm,omitempty"`
	PublicKeyBytes int     `json:"public_key_bytes"`
	SignatureBytes int     `json:"signature_bytes"`
	MessageBytes   int     `json:"message_bytes"`
	Valid          bool    `json:"valid"`
	Seconds        float64 `json:"seconds,omitempty"`
	Skipped        string  `json:"skipped,omitempty"`
}

// VerifyResult is the document of one verification pass over the chain.
type VerifyResult struct {
	RunID         string         `json:"run_id"`
	Timestamp     time.Time      `json:"timestamp"`
	FromBlock     uint64         `json:"from_block"`
	Algorithm     string         `json:"algorithm,omitempty"`
	Verifications []Verification `json:"verifications"`
	Valid         int            `json:"valid"`
	Invalid       int            `json:"invalid"`
	Skipped       int            `json:"skipped"`
	Timing        Summary        `json:"timing"`
}

// VerifyLogged reads every signature logged from fromBlock onwards and
// verifies it off-chain against the key its signer had registered when it
// was logged. With an empty id every registered algorithm is tried and the
// first that accepts names the signature's algorithm.
func (r *Runner) VerifyLogged(
	ctx context.Context,
	src SignatureSource,
	fromBlock uint64,
	id string,
) (*VerifyResult, error) {
	candidates, err := r.candidates(id)
	if err != nil {
		return nil, err
	}

	sigs, err := src.LoggedSignatures(ctx, fromBlock)
	if err != nil {
		return nil, err
	}

	keys, err := src.LoggedKeys(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		RunID:         uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		FromBlock:     fromBlock,
		Algorithm:     id,
		Verifications: make([]Verification, 0, len(sigs)),
	}

	r.Logger.InfoContext(ctx, "verifying logged signatures",
		slog.Uint64("from_block", fromBlock),
		slog.Int("signatures", len(sigs)),
	)

	current := make(map[common.Address][]byte)
	samples := make([]Sample, 0, len(sigs))

	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		v := Verification{
			Signer:         sig.Signer.Hex(),
			Block:          sig.Block,
			TxHash:         sig.TxHash.Hex(),
			SignatureBytes: len(sig.Signature),
			MessageBytes:   len(sig.Message),
		}

		key, ok := gas.KeyAt(keys, sig.Signer, sig.LogPosition)
		if !ok {
			key, err = r.currentKey(ctx, src, current, sig.Signer)
			if err != nil {
				return result, err
			}
		}

		if len(key) == 0 {
			v.Skipped = skippedNoKey
			result.Skipped++
			result.Verifications = append(result.Verifications, v)

			continue
		}

		v.PublicKeyBytes = len(key)

		sample := verifyWith(candidates, key, sig)
		if !sample.Failed() {
			v.Valid = true
			v.Algorithm = sample.Algorithm
			v.Seconds = sample.Seconds
			result.Valid++
		} else {
			v.Algorithm = id
			result.Invalid++
		}

		samples = append(samples, sample)
		result.Verifications = append(result.Verifications, v)

		r.Logger.DebugContext(ctx, "signature checked",
			slog.String("tx", v.TxHash),
			slog.String("algorithm", v.Algorithm),
			slog.Bool("valid", v.Valid),
		)
	}

	timing, err := Summarize(samples)
	if err != nil && !errors.Is(err, ErrEmptySampleSet) {
		return result, err
	}
	result.Timing = timing

	r.Logger.InfoContext(ctx, "verification finished",
		slog.Int("valid", result.Valid),
		slog.Int("invalid", result.Invalid),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (r *Runner) candidates(id string) ([]algorithm.Spec, error) {
	ids := r.Registry.IDs()
	if id != "" {
		ids = []string{id}
	}

	specs := make([]algorithm.Spec, 0, len(ids))
	for _, candidate := range ids {
		spec, err := r.Registry.Resolve(candidate)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// currentKey falls back to the registry's stored key for signers whose
// registration predates the queried logs.
func (r *Runner) currentKey(
	ctx context.Context,
	src SignatureSource,
	cache map[common.Address][]byte,
	signer common.Address,
) ([]byte, error) {
	if key, ok := cache[signer]; ok {
		return key, nil
	}

	key, err := src.RegisteredKey(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("registered key of %s: %w", signer.Hex(), err)
	}

	cache[signer] = key

	return key, nil
}

// verifyWith returns the first successful verification among specs, or the
// last failure.
func verifyWith(specs []algorithm.Spec, key []byte, sig gas.LoggedSignature) Sample {
	var last Sample

	for _, spec := range specs {
		seconds, err := timed(func() error {
			if !spec.Backend.Verify(key, sig.Message, sig.Signature) {
				return ErrInvalidSignature
			}

			return nil
		})

		last = newSample(spec.ID, OpVerify, seconds, err)
		if !last.Failed() {
			return last
		}
	}

	return last
}
