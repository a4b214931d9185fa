// Package chain implements gas.ChainClient over an Ethereum JSON-RPC
// endpoint using a single funded account.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/weiihann/sigbench/gas"
)

const (
	// DefaultRPCURL is the local development node used by the original
	// deployment scripts.
	DefaultRPCURL = "http://127.0.0.1:8545"

	// fallbackGasLimit covers the largest PQC keys when estimation fails.
	fallbackGasLimit = 1_000_000
)

var (
	ErrInvalidKey = errors.New("invalid account private key")
	ErrReadOnly   = errors.New("client has no account key")
)

var _ gas.ChainClient = (*Client)(nil)

// Config holds connection and submission parameters.
type Config struct {
	RPCURL         string
	PrivateKey     string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	GasBuffer      float64
}

// DefaultConfig returns the settings used against a local dev chain.
func DefaultConfig() Config {
	return Config{
		RPCURL:         DefaultRPCURL,
		ReceiptTimeout: 2 * time.Minute,
		PollInterval:   250 * time.Millisecond,
		GasBuffer:      1.5,
	}
}

// Client submits legacy transactions from one account. Nonces are tracked
// locally and handed out under a mutex.
type Client struct {
	cfg    Config
	eth    *ethclient.Client
	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer
	logger *slog.Logger

	mu          sync.Mutex
	nonce       uint64
	nonceLoaded bool
}

// Dial connects to cfg.RPCURL and queries the chain id. Connection failures
// wrap gas.ErrChainUnavailable. An empty cfg.PrivateKey yields a read-only
// client that can call and query logs but not submit.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	var (
		key  *ecdsa.PrivateKey
		from common.Address
	)

	if strings.TrimSpace(cfg.PrivateKey) != "" {
		var err error

		key, from, err = parseKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
	}

	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultConfig().ReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.GasBuffer < 1 {
		cfg.GasBuffer = DefaultConfig().GasBuffer
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", gas.ErrChainUnavailable, cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()

		return nil, fmt.Errorf("%w: chain id from %s: %w", gas.ErrChainUnavailable, cfg.RPCURL, err)
	}

	logger = logger.With(
		slog.String("rpc", cfg.RPCURL),
		slog.String("account", from.Hex()),
	)

	logger.InfoContext(ctx, "connected to chain",
		slog.String("chain_id", chainID.String()),
	)

	return &Client{
		cfg:    cfg,
		eth:    eth,
		key:    key,
		from:   from,
		signer: types.LatestSignerForChainID(chainID),
		logger: logger,
	}, nil
}

// Account returns the sending address, or the zero address for a read-only
// client.
func (c *Client) Account() common.Address {
	return c.from
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// SubmitTransaction signs and sends a call to `to`, then waits for it to be
// mined. A reverted transaction is reported through the receipt status, not
// as an error.
//
// Only transport failures wrap gas.ErrChainUnavailable. Errors the node
// answers with, such as insufficient funds, are returned as they are. Once
// the node has accepted the transaction every error wraps
// gas.ErrTransactionPending, since it may still be mined.
func (c *Client) SubmitTransaction(
	ctx context.Context,
	to common.Address,
	data []byte,
) (gas.Receipt, error) {
	if c.key == nil {
		return gas.Receipt{}, ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.nonceLoaded {
		nonce, err := c.eth.PendingNonceAt(ctx, c.from)
		if err != nil {
			return gas.Receipt{}, classify("pending nonce", err)
		}

		c.nonce = nonce
		c.nonceLoaded = true
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return gas.Receipt{}, classify("gas price", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		To:       &to,
		Gas:      c.gasLimit(ctx, to, data),
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return gas.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		// The node may or may not have accepted the nonce; reload it next time.
		c.nonceLoaded = false

		return gas.Receipt{}, classify("send transaction", err)
	}

	c.nonce++

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return gas.Receipt{}, fmt.Errorf("%w: receipt %s: %w",
			gas.ErrTransactionPending, signed.Hash().Hex(), err)
	}

	status := gas.StatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = gas.StatusRevert
	}

	price := gasPrice
	if receipt.EffectiveGasPrice != nil {
		price = receipt.EffectiveGasPrice
	}

	c.logger.DebugContext(ctx, "transaction mined",
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)

	return gas.Receipt{
		TxHash:   signed.Hash(),
		GasUsed:  receipt.GasUsed,
		Status:   status,
		GasPrice: uint256.MustFromBig(price),
	}, nil
}

// Call runs a read-only call against the latest block.
func (c *Client) Call(
	ctx context.Context,
	to common.Address,
	data []byte,
) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, classify("call "+to.Hex(), err)
	}

	return out, nil
}

// FilterLogs returns the logs matching q.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, classify("filter logs", err)
	}

	return logs, nil
}

// classify wraps err with gas.ErrChainUnavailable when the node could not
// be reached. JSON-RPC error responses mean the node is up and are returned
// unwrapped.
func classify(op string, err error) error {
	if unreachable(err) {
		return fmt.Errorf("%w: %s: %w", gas.ErrChainUnavailable, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func unreachable(err error) bool {
	var (
		rpcErr  rpc.Error
		dataErr rpc.DataError
		httpErr rpc.HTTPError
		netErr  net.Error
		urlErr  *url.Error
	)

	switch {
	case errors.As(err, &rpcErr), errors.As(err, &dataErr):
		return false
	case errors.As(err, &httpErr):
		// A proxy or gateway answered instead of the node.
		return true
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ECONNREFUSED):
		return true
	default:
		return false
	}
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, common.Address{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}
