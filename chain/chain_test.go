package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/sigbench/gas"
)

// First default account of the hardhat / anvil development mnemonic.
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    common.Address
		wantErr bool
	}{
		{
			name:  "with prefix",
			input: devKey,
			want:  common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		},
		{
			name:  "without prefix",
			input: devKey[2:],
			want:  common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		},
		{name: "empty", input: "", wantErr: true},
		{name: "not hex", input: "0xzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, addr, err := parseKey(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, addr)
		})
	}
}

func TestDialInvalidKeyIsNotUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivateKey = "nope"

	_, err := Dial(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, ErrInvalidKey)
	require.NotErrorIs(t, err, gas.ErrChainUnavailable)
}

func TestDialUnreachableIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.RPCURL = "http://127.0.0.1:1"
	cfg.PrivateKey = devKey

	_, err := Dial(ctx, cfg, testLogger())
	require.ErrorIs(t, err, gas.ErrChainUnavailable)
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()

	srv := node.serve(t)

	cfg := DefaultConfig()
	cfg.RPCURL = srv.URL
	cfg.PrivateKey = devKey
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ReceiptTimeout = 200 * time.Millisecond

	client, err := Dial(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestSubmitTransaction(t *testing.T) {
	gwei := big.NewInt(1_000_000_000)

	tests := []struct {
		name      string
		setup     func(n *fakeNode)
		wantGas   uint64
		wantPrice *big.Int
		status    gas.Status
	}{
		{
			name:      "estimate with buffer",
			wantGas:   75_000,
			wantPrice: gwei,
			status:    gas.StatusSuccess,
		},
		{
			name:      "effective gas price preferred",
			setup:     func(n *fakeNode) { n.effective = big.NewInt(3_000_000_000) },
			wantGas:   75_000,
			wantPrice: big.NewInt(3_000_000_000),
			status:    gas.StatusSuccess,
		},
		{
			name:      "failed estimate falls back",
			setup:     func(n *fakeNode) { n.estimateErr = true },
			wantGas:   fallbackGasLimit,
			wantPrice: gwei,
			status:    gas.StatusSuccess,
		},
		{
			name:      "status zero is a revert",
			setup:     func(n *fakeNode) { n.status = types.ReceiptStatusFailed },
			wantGas:   75_000,
			wantPrice: gwei,
			status:    gas.StatusRevert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode()
			if tt.setup != nil {
				tt.setup(node)
			}
			client := newTestClient(t, node)

			receipt, err := client.SubmitTransaction(context.Background(), testContract, []byte{0xca, 0xfe})
			require.NoError(t, err)

			sent := node.sentTxs()
			require.Len(t, sent, 1)

			tx := sent[0]
			require.Equal(t, tt.wantGas, tx.Gas())
			require.Equal(t, testContract, *tx.To())
			require.Equal(t, []byte{0xca, 0xfe}, tx.Data())

			from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
			require.NoError(t, err)
			require.Equal(t, client.Account(), from)

			require.Equal(t, tx.Hash(), receipt.TxHash)
			require.Equal(t, uint64(42_000), receipt.GasUsed)
			require.Equal(t, tt.status, receipt.Status)
			require.Zero(t, tt.wantPrice.Cmp(receipt.GasPrice.ToBig()),
				"gas price %s, want %s", receipt.GasPrice.Dec(), tt.wantPrice)
		})
	}
}

func TestSubmitTransactionNonces(t *testing.T) {
	node := newFakeNode()
	node.nonce = 7
	client := newTestClient(t, node)
	ctx := context.Background()

	for range 3 {
		_, err := client.SubmitTransaction(ctx, testContract, nil)
		require.NoError(t, err)
	}

	sent := node.sentTxs()
	require.Len(t, sent, 3)
	for i, tx := range sent {
		require.Equal(t, uint64(7+i), tx.Nonce())
	}
	require.Equal(t, 1, node.nonceCalls, "nonce is fetched once then tracked locally")

	// A rejected send forgets the local nonce; the node's view wins next time.
	node.mu.Lock()
	node.sendErrs = []rpcFailure{{Code: -32000, Message: "nonce too low"}}
	node.nonce = 20
	node.mu.Unlock()

	_, err := client.SubmitTransaction(ctx, testContract, nil)
	require.Error(t, err)

	_, err = client.SubmitTransaction(ctx, testContract, nil)
	require.NoError(t, err)

	sent = node.sentTxs()
	require.Len(t, sent, 4)
	require.Equal(t, uint64(20), sent[3].Nonce())
	require.Equal(t, 2, node.nonceCalls)
}

func TestSubmitTransactionNodeRejection(t *testing.T) {
	tests := []rpcFailure{
		{Code: -32000, Message: "insufficient funds for gas * price + value"},
		{Code: -32000, Message: "nonce too low"},
		{Code: -32000, Message: "oversized data"},
		{Code: 3, Message: "execution reverted"},
	}

	for _, failure := range tests {
		t.Run(failure.Message, func(t *testing.T) {
			node := newFakeNode()
			node.sendErrs = []rpcFailure{failure}
			client := newTestClient(t, node)

			_, err := client.SubmitTransaction(context.Background(), testContract, []byte{1})
			require.Error(t, err)
			require.NotErrorIs(t, err, gas.ErrChainUnavailable)
			require.NotErrorIs(t, err, gas.ErrTransactionPending)
			require.ErrorContains(t, err, failure.Message)

			var rpcErr rpc.Error
			require.ErrorAs(t, err, &rpcErr)
			require.Equal(t, failure.Code, rpcErr.ErrorCode())
		})
	}
}

func TestSubmitTransactionReceiptTimeout(t *testing.T) {
	node := newFakeNode()
	node.noReceipt = true
	client := newTestClient(t, node)

	start := time.Now()
	_, err := client.SubmitTransaction(context.Background(), testContract, []byte{1})

	require.ErrorIs(t, err, gas.ErrTransactionPending)
	require.NotErrorIs(t, err, gas.ErrChainUnavailable)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, node.sentTxs(), 1)

	// The accepted transaction still holds its nonce.
	node.mu.Lock()
	node.noReceipt = false
	node.mu.Unlock()

	_, err = client.SubmitTransaction(context.Background(), testContract, []byte{2})
	require.NoError(t, err)

	sent := node.sentTxs()
	require.Equal(t, sent[0].Nonce()+1, sent[1].Nonce())
}

func TestSubmitTransactionNodeGone(t *testing.T) {
	node := newFakeNode()
	srv := node.serve(t)

	cfg := DefaultConfig()
	cfg.RPCURL = srv.URL
	cfg.PrivateKey = devKey

	client, err := Dial(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer client.Close()

	srv.Close()

	_, err = client.SubmitTransaction(context.Background(), testContract, []byte{1})
	require.ErrorIs(t, err, gas.ErrChainUnavailable)
}

func TestReadOnlyClient(t *testing.T) {
	node := newFakeNode()
	srv := node.serve(t)

	cfg := DefaultConfig()
	cfg.RPCURL = srv.URL

	client, err := Dial(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, common.Address{}, client.Account())

	_, err = client.SubmitTransaction(context.Background(), testContract, nil)
	require.ErrorIs(t, err, ErrReadOnly)
	require.Empty(t, node.sentTxs())
}

func TestFilterLogs(t *testing.T) {
	node := newFakeNode()
	node.logs = []types.Log{{
		Address:     testContract,
		Topics:      []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		Data:        []byte{0xab},
		BlockNumber: 9,
		TxHash:      common.HexToHash("0x03"),
	}}
	client := newTestClient(t, node)

	logs, err := client.FilterLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(4),
		Addresses: []common.Address{testContract},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, uint64(9), logs[0].BlockNumber)
	require.Equal(t, []byte{0xab}, logs[0].Data)

	require.Len(t, node.queries, 1)
	require.Equal(t, "0x4", node.queries[0]["fromBlock"])
}

type nodeError struct {
	code int
	msg  string
}

func (e nodeError) Error() string  { return e.msg }
func (e nodeError) ErrorCode() int { return e.code }

func TestUnreachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "connection refused",
			err:  &url.Error{Op: "Post", URL: "http://127.0.0.1:8545", Err: syscall.ECONNREFUSED},
			want: true,
		},
		{name: "deadline", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), want: true},
		{name: "gateway", err: rpc.HTTPError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}, want: true},
		{name: "json-rpc error", err: nodeError{code: -32000, msg: "insufficient funds"}},
		{name: "wrapped json-rpc error", err: fmt.Errorf("send: %w", nodeError{code: -32000, msg: "nonce too low"})},
		{name: "plain", err: errors.New("rlp: too short")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, unreachable(tt.err))

			wrapped := classify("op", tt.err)
			require.Equal(t, tt.want, errors.Is(wrapped, gas.ErrChainUnavailable))
			require.ErrorContains(t, wrapped, tt.err.Error())
		})
	}
}
