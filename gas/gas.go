// Package gas measures the on-chain cost of registering PQC public keys and
// logging signatures against the key registry contract.
package gas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	// ErrChainUnavailable is wrapped by ChainClient implementations when the
	// chain cannot be reached.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrTransactionPending is wrapped when a transaction was accepted by the
	// node but no receipt was obtained. It is never retried: the original
	// transaction may still be mined.
	ErrTransactionPending = errors.New("transaction sent but not confirmed")
)

// Status is the outcome of a mined transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusRevert  Status = "revert"

	// StatusSkipped marks a registration that was not sent because the key
	// was already stored for the account.
	StatusSkipped Status = "skipped"
)

// Operation names the contract call a Record measured.
type Operation string

const (
	OpRegisterKey  Operation = "register-key"
	OpLogSignature Operation = "log-signature"
)

const (
	defaultAttempts   = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// Receipt is what a ChainClient reports for a mined transaction.
type Receipt struct {
	TxHash   common.Hash
	GasUsed  uint64
	Status   Status
	GasPrice *uint256.Int
}

// ChainClient submits transactions from a single account.
type ChainClient interface {
	Account() common.Address
	SubmitTransaction(ctx context.Context, to common.Address, data []byte) (Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Record is the gas measurement for one algorithm and operation.
type Record struct {
	Algorithm    string    `json:"algorithm"`
	Operation    Operation `json:"operation"`
	GasUsed      uint64    `json:"gas_used"`
	Status       Status    `json:"status"`
	TxHash       string    `json:"tx_hash,omitempty"`
	CostWei      string    `json:"cost_wei,omitempty"`
	PayloadBytes int       `json:"payload_bytes"`
}

// Meter measures gas for registry calls. All submissions go through one
// mutex so the account's nonces are used in order even when callers are
// concurrent.
type Meter struct {
	client     ChainClient
	contract   common.Address
	abi        abi.ABI
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

// Option configures a Meter.
type Option func(*Meter)

// WithAttempts sets how many times a submission is tried before
// ErrChainUnavailable is returned. Values below 1 are ignored.
func WithAttempts(n int) Option {
	return func(m *Meter) {
		if n >= 1 {
			m.attempts = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Meter) {
		m.retryDelay = d
	}
}

// NewMeter creates a Meter submitting to the registry at contract.
func NewMeter(
	client ChainClient,
	contract common.Address,
	logger *slog.Logger,
	opts ...Option,
) (*Meter, error) {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry ABI: %w", err)
	}

	m := &Meter{
		client:     client,
		contract:   contract,
		abi:        parsed,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		logger:     logger.With(slog.String("contract", contract.Hex())),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// MeasureRegistration submits registerPQCKey(publicKey) and reads the key
// back to confirm it was stored. A key the account already has registered is
// not sent again; the record is StatusSkipped with no gas.
func (m *Meter) MeasureRegistration(
	ctx context.Context,
	algorithm string,
	publicKey []byte,
) (Record, error) {
	stored, err := m.RegisteredKey(ctx, m.client.Account())

	switch {
	case errors.Is(err, ErrChainUnavailable):
		return Record{}, fmt.Errorf("%s for %s: %w", OpRegisterKey, algorithm, err)
	case err != nil:
		m.logger.DebugContext(ctx, "registered key lookup failed",
			slog.String("algorithm", algorithm),
			slog.String("error", err.Error()),
		)
	case len(stored) > 0 && bytes.Equal(stored, publicKey):
		m.logger.InfoContext(ctx, "key already registered",
			slog.String("algorithm", algorithm),
		)

		return Record{
			Algorithm:    algorithm,
			Operation:    OpRegisterKey,
			Status:       StatusSkipped,
			PayloadBytes: len(publicKey),
		}, nil
	}

	data, err := m.abi.Pack(methodRegisterKey, publicKey)
	if err != nil {
		return Record{}, fmt.Errorf("pack %s: %w", methodRegisterKey, err)
	}

	rec, err := m.measure(ctx, algorithm, OpRegisterKey, data, len(publicKey))
	if err != nil {
		return Record{}, err
	}

	if rec.Status == StatusSuccess {
		m.confirmRegistration(ctx, algorithm, publicKey)
	}

	return rec, nil
}

// MeasureSignatureLog submits logSignature(signature, message).
func (m *Meter) MeasureSignatureLog(
	ctx context.Context,
	algorithm string,
	signature, message []byte,
) (Record, error) {
	data, err := m.abi.Pack(methodLogSignature, signature, message)
	if err != nil {
		return Record{}, fmt.Errorf("pack %s: %w", methodLogSignature, err)
	}

	return m.measure(ctx, algorithm, OpLogSignature, data,
		len(signature)+len(message))
}

// RegisteredKey returns the key stored for account.
func (m *Meter) RegisteredKey(
	ctx context.Context,
	account common.Address,
) ([]byte, error) {
	data, err := m.abi.Pack(methodGetKey, account)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", methodGetKey, err)
	}

	out, err := m.client.Call(ctx, m.contract, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", methodGetKey, err)
	}

	values, err := m.abi.Unpack(methodGetKey, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", methodGetKey, err)
	}

	key, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", methodGetKey, values[0])
	}

	return key, nil
}

func (m *Meter) measure(
	ctx context.Context,
	algorithm string,
	op Operation,
	data []byte,
	payload int,
) (Record, error) {
	receipt, err := m.submit(ctx, algorithm, op, data)
	if err != nil {
		return Record{}, fmt.Errorf("%s for %s: %w", op, algorithm, err)
	}

	rec := Record{
		Algorithm:    algorithm,
		Operation:    op,
		GasUsed:      receipt.GasUsed,
		Status:       receipt.Status,
		TxHash:       receipt.TxHash.Hex(),
		PayloadBytes: payload,
	}

	if receipt.GasPrice != nil {
		cost := new(uint256.Int).Mul(uint256.NewInt(receipt.GasUsed), receipt.GasPrice)
		rec.CostWei = cost.Dec()
	}

	m.logger.InfoContext(ctx, "gas measured",
		slog.String("algorithm", algorithm),
		slog.String("operation", string(op)),
		slog.Uint64("gas_used", rec.GasUsed),
		slog.String("status", string(rec.Status)),
	)

	return rec, nil
}

func (m *Meter) submit(
	ctx context.Context,
	algorithm string,
	op Operation,
	data []byte,
) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error

	for attempt := 1; attempt <= m.attempts; attempt++ {
		var receipt Receipt

		receipt, err = m.client.SubmitTransaction(ctx, m.contract, data)
		if err == nil {
			return receipt, nil
		}

		if !errors.Is(err, ErrChainUnavailable) || errors.Is(err, ErrTransactionPending) {
			return Receipt{}, err
		}

		m.logger.WarnContext(ctx, "submission failed",
			slog.String("algorithm", algorithm),
			slog.String("operation", string(op)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt == m.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}

	return Receipt{}, err
}

// TotalGas sums the gas used by records, the registration plus transaction
// cost of an algorithm. Skipped registrations contribute nothing.
func TotalGas(records []Record) uint64 {
	var total uint64
	for _, rec := range records {
		total += rec.GasUsed
	}

	return total
}

func (m *Meter) confirmRegistration(
	ctx context.Context,
	algorithm string,
	publicKey []byte,
) {
	stored, err := m.RegisteredKey(ctx, m.client.Account())
	if err != nil {
		m.logger.WarnContext(ctx, "failed to read back registered key",
			slog.String("algorithm", algorithm),
			slog.String("error", err.Error()),
		)

		return
	}

	if !bytes.Equal(stored, publicKey) {
		m.logger.WarnContext(ctx, "registered key mismatch",
			slog.String("algorithm", algorithm),
			slog.Int("stored_bytes", len(stored)),
			slog.Int("key_bytes", len(publicKey)),
		)
	}
}
