package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/daverbj/solana-llm-integration/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// DefaultMaxAttempts is the balance-read retry budget.
	DefaultMaxAttempts = 5

	// DefaultRetryDelay is the fixed wait between balance-read attempts.
	DefaultRetryDelay = time.Second
)

// Client provides the balance, airdrop and confirmation operations against one RPC endpoint.
// It wraps the RPC client with bounded retry and per-call metrics.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "devnet", rpc host)
	maxAttempts int
	backoff     Backoff
	sleep       SleepFunc
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAttempts sets the retry budget for balance reads. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the wait strategy between failed attempts.
func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithSleep replaces the function used for every wait the client performs.
// Tests use it to record delays without blocking.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "devnet" or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		maxAttempts: DefaultMaxAttempts,
		backoff:     FixedBackoff{Interval: DefaultRetryDelay},
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBalance reads the confirmed lamport balance of addr, retrying up to the
// configured budget. After the last failure it returns an *RPCExhaustedError
// wrapping the final underlying error.
func (c *Client) FetchBalance(ctx context.Context, addr Address) (uint64, error) {
	pubkey, err := addr.PublicKey()
	if err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		if err == nil && out == nil {
			err = errors.New("empty getBalance response")
		}
		c.recordCall("getBalance", err, start)

		if err == nil {
			c.logger.DebugContext(ctx, "fetched balance",
				"address", addr.String(),
				"lamports", out.Value,
				"attempt", attempt,
			)
			return out.Value, nil
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff.Delay(attempt)
		c.logger.WarnContext(ctx, "failed to get balance on attempt",
			"address", addr.String(),
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
			"backoff_seconds", delay.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("getBalance", "error")
		}
		if err := c.sleep(ctx, delay); err != nil {
			return 0, fmt.Errorf("balance retry interrupted: %w", err)
		}
	}

	c.logger.ErrorContext(ctx, "balance fetch exhausted retries",
		"address", addr.String(),
		"attempts", c.maxAttempts,
		"error", lastErr,
	)
	if c.metrics != nil {
		c.metrics.RecordRPCExhausted("getBalance", c.endpoint)
	}
	return 0, &RPCExhaustedError{Method: "getBalance", Attempts: c.maxAttempts, Err: lastErr}
}

// GetBalance returns a fresh BalanceReading for addr.
func (c *Client) GetBalance(ctx context.Context, addr Address) (*BalanceReading, error) {
	lamports, err := c.FetchBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &BalanceReading{
		Address:  addr.String(),
		Lamports: lamports,
		SOL:      LamportsToSOL(lamports),
	}, nil
}

// RequestAirdrop asks the faucet to credit lamports to addr. It is not retried:
// a repeated request could credit the account twice.
func (c *Client) RequestAirdrop(ctx context.Context, addr Address, lamports uint64) (solana.Signature, error) {
	pubkey, err := addr.PublicKey()
	if err != nil {
		return solana.Signature{}, err
	}

	start := time.Now()
	sig, err := c.rpc.RequestAirdrop(ctx, pubkey, lamports, rpc.CommitmentConfirmed)
	c.recordCall("requestAirdrop", err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "airdrop request rejected",
			"address", addr.String(),
			"lamports", lamports,
			"error", err,
		)
		return solana.Signature{}, err
	}

	c.logger.InfoContext(ctx, "airdrop submitted",
		"address", addr.String(),
		"lamports", lamports,
		"signature", sig.String(),
	)
	return sig, nil
}

// ConfirmTransaction polls the signature status every pollInterval until it
// reaches confirmed (or finalized) commitment. A transaction-level error is
// returned immediately as *TransactionError. The number of polls is bounded by
// timeout/pollInterval; RPC errors while polling are logged and polling continues.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature, pollInterval, timeout time.Duration) (rpc.ConfirmationStatusType, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	maxPolls := int(timeout / pollInterval)
	if timeout%pollInterval != 0 {
		maxPolls++
	}
	if maxPolls < 1 {
		maxPolls = 1
	}

	var lastErr error
	var lastStatus rpc.ConfirmationStatusType
	for poll := 1; poll <= maxPolls; poll++ {
		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.recordCall("getSignatureStatuses", err, start)

		if err != nil {
			lastErr = err
			c.logger.WarnContext(ctx, "failed to get signature status",
				"signature", sig.String(),
				"poll", poll,
				"error", err,
			)
		} else if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				c.logger.ErrorContext(ctx, "transaction failed on chain",
					"signature", sig.String(),
					"error", status.Err,
				)
				return status.ConfirmationStatus, &TransactionError{Signature: sig.String(), Err: status.Err}
			}
			lastStatus = status.ConfirmationStatus
			if lastStatus == rpc.ConfirmationStatusConfirmed || lastStatus == rpc.ConfirmationStatusFinalized {
				c.logger.DebugContext(ctx, "transaction confirmed",
					"signature", sig.String(),
					"status", lastStatus,
					"polls", poll,
				)
				return lastStatus, nil
			}
		}

		if poll == maxPolls {
			break
		}
		if err := c.sleep(ctx, pollInterval); err != nil {
			return lastStatus, fmt.Errorf("confirmation wait interrupted: %w", err)
		}
	}

	if lastErr != nil {
		return lastStatus, fmt.Errorf("transaction %s not confirmed within %s: %w", sig, timeout, lastErr)
	}
	return lastStatus, fmt.Errorf("transaction %s not confirmed within %s (last status %q)", sig, timeout, lastStatus)
}

func (c *Client) recordCall(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}
