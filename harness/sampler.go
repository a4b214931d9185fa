package harness

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/weiihann/sigbench/algorithm"
)

// Operation is a timed backend call.
type Operation string

const (
	OpKeygen Operation = "keygen"
	OpSign   Operation = "sign"
	OpVerify Operation = "verify"
)

// Operations lists the sampled operations in execution order.
var Operations = []Operation{OpKeygen, OpSign, OpVerify}

// Error kinds recorded on failed samples.
const (
	KindBackendError     = "backend_error"
	KindPanic            = "panic"
	KindInvalidSignature = "invalid_signature"
	KindMissingSignature = "missing_signature"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidSignature = errors.New("signature did not verify")

	errBackendPanic     = errors.New("backend panicked")
	errMissingSignature = errors.New("no signature to verify")
)

// Sample is one timed invocation. Failed samples carry no duration.
type Sample struct {
	Algorithm string    `json:"algorithm"`
	Operation Operation `json:"operation"`
	Seconds   float64   `json:"seconds,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Err       error     `json:"-"`
}

// Failed reports whether the sample's operation failed.
func (s Sample) Failed() bool {
	return s.Err != nil
}

// SignedPair is the output of one sign sample, kept for the paired verify.
type SignedPair struct {
	Keypair   algorithm.Keypair
	Message   []byte
	Signature []byte
	Err       error
}

// Sampler times backend operations one at a time. It must not be used from
// multiple goroutines: concurrent calls would distort wall-clock timings.
type Sampler struct {
	Message []byte
	Entropy io.Reader
}

// NewSampler creates a Sampler signing message and drawing key material from
// entropy. A nil entropy uses crypto/rand.
func NewSampler(message []byte, entropy io.Reader) *Sampler {
	if entropy == nil {
		entropy = rand.Reader
	}

	return &Sampler{Message: message, Entropy: entropy}
}

// Measure runs n samples of op. Verify samples sign fresh pairs first
// (untimed).
func (s *Sampler) Measure(spec algorithm.Spec, op Operation, n int) ([]Sample, error) {
	switch op {
	case OpKeygen:
		return s.Keygen(spec, n), nil
	case OpSign:
		samples, _ := s.Sign(spec, n)

		return samples, nil
	case OpVerify:
		_, pairs := s.Sign(spec, n)

		return s.Verify(spec, pairs), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

// Keygen times n key generations.
func (s *Sampler) Keygen(spec algorithm.Spec, n int) []Sample {
	samples := make([]Sample, 0, n)

	for range n {
		seconds, err := timed(func() error {
			_, err := spec.Backend.GenerateKeypair(s.Entropy)

			return err
		})

		samples = append(samples, newSample(spec.ID, OpKeygen, seconds, err))
	}

	return samples
}

// Sign times n signatures of the sampler's message, each under a freshly
// generated keypair. The returned pairs feed Verify.
func (s *Sampler) Sign(spec algorithm.Spec, n int) ([]Sample, []SignedPair) {
	samples := make([]Sample, 0, n)
	pairs := make([]SignedPair, 0, n)

	for range n {
		pair := SignedPair{Message: s.Message}

		pair.Err = guard(func() error {
			kp, err := spec.Backend.GenerateKeypair(s.Entropy)
			pair.Keypair = kp

			return err
		})

		if pair.Err != nil {
			pair.Err = fmt.Errorf("generate keypair: %w", pair.Err)
			samples = append(samples, newSample(spec.ID, OpSign, 0, pair.Err))
			pairs = append(pairs, pair)

			continue
		}

		seconds, err := timed(func() error {
			sig, err := spec.Backend.Sign(pair.Keypair.SecretKey, pair.Message)
			pair.Signature = sig

			return err
		})

		pair.Err = err
		samples = append(samples, newSample(spec.ID, OpSign, seconds, err))
		pairs = append(pairs, pair)
	}

	return samples, pairs
}

// Verify times one verification per pair. A verification returning false on
// an honestly signed pair is a failed sample.
func (s *Sampler) Verify(spec algorithm.Spec, pairs []SignedPair) []Sample {
	samples := make([]Sample, 0, len(pairs))

	for _, pair := range pairs {
		if pair.Err != nil {
			err := fmt.Errorf("%w: %w", errMissingSignature, pair.Err)
			samples = append(samples, newSample(spec.ID, OpVerify, 0, err))

			continue
		}

		seconds, err := timed(func() error {
			if !spec.Backend.Verify(pair.Keypair.PublicKey, pair.Message, pair.Signature) {
				return ErrInvalidSignature
			}

			return nil
		})

		samples = append(samples, newSample(spec.ID, OpVerify, seconds, err))
	}

	return samples
}

func newSample(id string, op Operation, seconds float64, err error) Sample {
	if err != nil {
		return Sample{
			Algorithm: id,
			Operation: op,
			ErrorKind: errorKind(err),
			Err:       err,
		}
	}

	return Sample{Algorithm: id, Operation: op, Seconds: seconds}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, errMissingSignature):
		return KindMissingSignature
	case errors.Is(err, ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, errBackendPanic):
		return KindPanic
	default:
		return KindBackendError
	}
}

// timed runs fn and returns its wall-clock duration in seconds.
func timed(fn func() error) (float64, error) {
	start := time.Now()
	err := guard(fn)

	return time.Since(start).Seconds(), err
}

// guard converts a backend panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errBackendPanic, r)
		}
	}()

	return fn()
}
