package chain

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const testChainID = 1337

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeNode answers the JSON-RPC methods the client uses, mining every
// accepted transaction into its own block.
type fakeNode struct {
	mu sync.Mutex

	nonce       uint64
	gasPrice    int64
	estimate    uint64
	estimateErr bool
	gasUsed     uint64
	status      uint64
	effective   *big.Int
	noReceipt   bool
	logs        []types.Log

	// sendErrs are returned by eth_sendRawTransaction, one per call, before
	// transactions are accepted again.
	sendErrs []rpcFailure

	nonceCalls int
	sent       []*types.Transaction
	queries    []map[string]any
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		gasPrice: 1_000_000_000,
		estimate: 50_000,
		gasUsed:  42_000,
		status:   types.ReceiptStatusSuccessful,
	}
}

func (n *fakeNode) serve(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		result, failure := n.handle(req)

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if failure != nil {
			resp["error"] = failure
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func (n *fakeNode) handle(req rpcRequest) (any, *rpcFailure) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		return hexutil.Uint64(testChainID), nil

	case "eth_getTransactionCount":
		n.nonceCalls++

		return hexutil.Uint64(n.nonce), nil

	case "eth_gasPrice":
		return (*hexutil.Big)(big.NewInt(n.gasPrice)), nil

	case "eth_estimateGas":
		if n.estimateErr {
			return nil, &rpcFailure{Code: 3, Message: "execution reverted"}
		}

		return hexutil.Uint64(n.estimate), nil

	case "eth_sendRawTransaction":
		if len(n.sendErrs) > 0 {
			failure := n.sendErrs[0]
			n.sendErrs = n.sendErrs[1:]

			return nil, &failure
		}

		var raw hexutil.Bytes
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			return nil, &rpcFailure{Code: -32602, Message: err.Error()}
		}

		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, &rpcFailure{Code: -32602, Message: err.Error()}
		}

		n.sent = append(n.sent, tx)
		n.nonce = tx.Nonce() + 1

		return tx.Hash(), nil

	case "eth_getTransactionReceipt":
		if n.noReceipt {
			return nil, nil
		}

		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, &rpcFailure{Code: -32602, Message: err.Error()}
		}

		for i, tx := range n.sent {
			if tx.Hash() == hash {
				return n.receipt(tx, uint64(i+1)), nil
			}
		}

		return nil, nil

	case "eth_getLogs":
		var q map[string]any
		if err := json.Unmarshal(req.Params[0], &q); err != nil {
			return nil, &rpcFailure{Code: -32602, Message: err.Error()}
		}
		n.queries = append(n.queries, q)

		return n.logs, nil

	default:
		return nil, &rpcFailure{Code: -32601, Message: "method not found: " + req.Method}
	}
}

func (n *fakeNode) receipt(tx *types.Transaction, block uint64) *types.Receipt {
	return &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            n.status,
		CumulativeGasUsed: n.gasUsed,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           n.gasUsed,
		EffectiveGasPrice: n.effective,
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(block)),
		BlockNumber:       new(big.Int).SetUint64(block),
	}
}

func (n *fakeNode) sentTxs() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]*types.Transaction(nil), n.sent...)
}
