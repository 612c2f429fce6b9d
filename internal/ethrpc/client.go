package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultTimeout bounds Dial when DialConfig.Timeout is zero.
const DefaultTimeout = 7 * time.Second

const (
	initialDialInterval = 50 * time.Millisecond
	maxDialInterval     = time.Second
)

// DialConfig configures Dial.
type DialConfig struct {
	Endpoint string        // e.g. ws://127.0.0.1:1111
	Timeout  time.Duration // Overall bound on all attempts
	Logger   *slog.Logger  // Optional, defaults to slog.Default()
}

// Client is a connected JSON-RPC client.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// Dial connects to cfg.Endpoint. When the timeout elapses the returned error
// wraps context.DeadlineExceeded together with the last dial failure.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("dial: endpoint must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initialDialInterval),
		backoff.WithMaxInterval(maxDialInterval),
		backoff.WithMaxElapsedTime(0), // bounded by ctx
	)

	var (
		conn    *rpc.Client
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		c, err := rpc.DialWebsocket(ctx, cfg.Endpoint, "")
		if err != nil {
			lastErr = err
			log.Debug("dial attempt failed", "endpoint", cfg.Endpoint, "attempt", attempt, "error", err)
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("dial %s after %d attempts: %w", cfg.Endpoint, attempt, errors.Join(ctxErr, lastErr))
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}

	return &Client{rpc: conn, eth: ethclient.NewClient(conn)}, nil
}

// Accounts returns the checksummed addresses of the node's unlocked accounts
// in node order.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	var addrs []common.Address
	if err := c.rpc.CallContext(ctx, &addrs, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out, nil
}

// NetworkID returns the value reported by net_version.
func (c *Client) NetworkID(ctx context.Context) (uint64, error) {
	id, err := c.eth.NetworkID(ctx)
	if err != nil {
		return 0, fmt.Errorf("net_version: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("net_version: %s overflows uint64", id)
	}
	return id.Uint64(), nil
}

// Eth returns the typed client sharing this connection.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.rpc.Close()
}
