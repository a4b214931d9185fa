package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogPosition orders events on the chain.
type LogPosition struct {
	Block uint64
	Index uint
}

// Before reports whether p comes earlier in the chain than o.
func (p LogPosition) Before(o LogPosition) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}

	return p.Index < o.Index
}

// LoggedSignature is one PQCSignature event emitted by logSignature.
type LoggedSignature struct {
	LogPosition
	Signer    common.Address
	Signature []byte
	Message   []byte
	TxHash    common.Hash
}

// LoggedKey is one PQCKeyRegistered event emitted by registerPQCKey.
type LoggedKey struct {
	LogPosition
	Signer    common.Address
	PublicKey []byte
}

// LoggedSignatures returns the PQCSignature events of the registry from
// fromBlock onwards, in chain order.
func (m *Meter) LoggedSignatures(ctx context.Context, fromBlock uint64) ([]LoggedSignature, error) {
	logs, err := m.filterEvent(ctx, eventSignature, fromBlock)
	if err != nil {
		return nil, err
	}

	out := make([]LoggedSignature, 0, len(logs))

	for _, l := range logs {
		var fields struct {
			Signature []byte
			Message   []byte
		}

		if err := m.abi.UnpackIntoInterface(&fields, eventSignature, l.Data); err != nil {
			return nil, fmt.Errorf("unpack %s log in tx %s: %w", eventSignature, l.TxHash.Hex(), err)
		}

		out = append(out, LoggedSignature{
			LogPosition: LogPosition{Block: l.BlockNumber, Index: l.Index},
			Signer:      common.BytesToAddress(l.Topics[1].Bytes()),
			Signature:   fields.Signature,
			Message:     fields.Message,
			TxHash:      l.TxHash,
		})
	}

	return out, nil
}

// LoggedKeys returns every PQCKeyRegistered event of the registry, in chain
// order. The registry keeps only the latest key per account, so these are
// the only record of keys that were later replaced.
func (m *Meter) LoggedKeys(ctx context.Context) ([]LoggedKey, error) {
	logs, err := m.filterEvent(ctx, eventKeyRegistered, 0)
	if err != nil {
		return nil, err
	}

	out := make([]LoggedKey, 0, len(logs))

	for _, l := range logs {
		var fields struct {
			PublicKey []byte
		}

		if err := m.abi.UnpackIntoInterface(&fields, eventKeyRegistered, l.Data); err != nil {
			return nil, fmt.Errorf("unpack %s log in tx %s: %w", eventKeyRegistered, l.TxHash.Hex(), err)
		}

		out = append(out, LoggedKey{
			LogPosition: LogPosition{Block: l.BlockNumber, Index: l.Index},
			Signer:      common.BytesToAddress(l.Topics[1].Bytes()),
			PublicKey:   fields.PublicKey,
		})
	}

	return out, nil
}

// filterEvent queries the registry's logs for one event. Every event of the
// registry indexes the account as its first topic.
func (m *Meter) filterEvent(ctx context.Context, name string, fromBlock uint64) ([]types.Log, error) {
	event, ok := m.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("registry ABI has no %s event", name)
	}

	logs, err := m.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{m.contract},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter %s logs: %w", name, err)
	}

	for _, l := range logs {
		if len(l.Topics) < 2 {
			return nil, fmt.Errorf("%s log in tx %s: missing account topic", name, l.TxHash.Hex())
		}
	}

	return logs, nil
}

// KeyAt returns the key signer had registered just before pos, searching
// keys in chain order.
func KeyAt(keys []LoggedKey, signer common.Address, pos LogPosition) ([]byte, bool) {
	var (
		key   []byte
		found bool
	)

	for _, k := range keys {
		if !k.Before(pos) {
			break
		}

		if k.Signer == signer {
			key, found = k.PublicKey, true
		}
	}

	return key, found
}
