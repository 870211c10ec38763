package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/metrics"
	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// SubmitAirdropInput contains parameters for the SubmitAirdrop activity.
type SubmitAirdropInput struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// ConfirmAirdropInput contains parameters for the ConfirmAirdrop activity.
type ConfirmAirdropInput struct {
	Signature    string        `json:"signature"`
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
}

// RecordAirdropInput contains parameters for the RecordAirdrop activity.
type RecordAirdropInput struct {
	Result *solana.AirdropResult `json:"result"`
	Source string                `json:"source"`
}

// SolanaClientInterface defines the Solana operations needed by activities.
// This allows for easy mocking in tests.
type SolanaClientInterface interface {
	FetchBalance(ctx context.Context, addr solana.Address) (uint64, error)
	RequestAirdrop(ctx context.Context, addr solana.Address, lamports uint64) (solanago.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solanago.Signature, pollInterval, timeout time.Duration) (rpc.ConfirmationStatusType, error)
}

// StoreInterface defines the ledger operations needed by activities.
type StoreInterface interface {
	RecordAirdrop(ctx context.Context, result *solana.AirdropResult, source string) (*db.Airdrop, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishAirdrop(ctx context.Context, event *natspkg.AirdropEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	solana    SolanaClientInterface
	store     StoreInterface     // optional
	publisher PublisherInterface // optional
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// store and publisher may be nil. If metrics is nil, no metrics will be recorded.
func NewActivities(
	solanaClient SolanaClientInterface,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		solana:    solanaClient,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ReadBalance returns the confirmed lamport balance of an address. The client
// spends the whole retry budget, so neither an exhausted read nor an invalid
// address is retried by Temporal.
func (a *Activities) ReadBalance(ctx context.Context, address string) (balance uint64, err error) {
	defer a.observe("ReadBalance", time.Now(), &err)

	addr, err := solana.ParseAddress(address)
	if err != nil {
		return 0, nonRetryable(err)
	}

	balance, err = a.solana.FetchBalance(ctx, addr)
	if err != nil {
		switch {
		case errors.Is(err, solana.ErrInvalidAddress):
			return 0, nonRetryable(err)
		case errors.Is(err, solana.ErrRPCExhausted):
			return 0, temporalsdk.NewNonRetryableApplicationError(err.Error(), "RPCExhausted", err)
		}
		return 0, err
	}
	return balance, nil
}

// SubmitAirdrop asks the faucet for lamports and returns the signature.
// The workflow runs it with a single attempt so a request is never sent twice.
func (a *Activities) SubmitAirdrop(ctx context.Context, input SubmitAirdropInput) (signature string, err error) {
	defer a.observe("SubmitAirdrop", time.Now(), &err)

	addr, err := solana.ParseAddress(input.Address)
	if err != nil {
		return "", nonRetryable(err)
	}

	sig, err := a.solana.RequestAirdrop(ctx, addr, input.Lamports)
	if err != nil {
		return "", err
	}

	a.logger.InfoContext(ctx, "airdrop submitted by workflow",
		"address", input.Address,
		"lamports", input.Lamports,
		"signature", sig.String(),
	)
	return sig.String(), nil
}

// ConfirmAirdrop waits until the signature reaches confirmed commitment.
// A transaction-level failure is not retryable.
func (a *Activities) ConfirmAirdrop(ctx context.Context, input ConfirmAirdropInput) (status string, err error) {
	defer a.observe("ConfirmAirdrop", time.Now(), &err)

	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return "", nonRetryable(fmt.Errorf("invalid signature %q: %w", input.Signature, err))
	}

	confirmed, err := a.solana.ConfirmTransaction(ctx, sig, input.PollInterval, input.Timeout)
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			return "", nonRetryable(err)
		}
		return "", err
	}
	return string(confirmed), nil
}

// RecordAirdrop writes a completed airdrop to the ledger and publishes it.
// Both sinks are best effort: failures are logged and never fail the workflow.
func (a *Activities) RecordAirdrop(ctx context.Context, input RecordAirdropInput) (err error) {
	defer a.observe("RecordAirdrop", time.Now(), &err)

	if input.Result == nil {
		return nil
	}

	if a.store != nil {
		if _, err := a.store.RecordAirdrop(ctx, input.Result, input.Source); err != nil {
			a.logger.ErrorContext(ctx, "failed to record airdrop",
				"signature", input.Result.Signature,
				"error", err,
			)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.PublishAirdrop(ctx, natspkg.FromAirdropResult(input.Result, input.Source)); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish airdrop event",
				"signature", input.Result.Signature,
				"error", err,
			)
		}
	}
	return nil
}

func (a *Activities) observe(activity string, start time.Time, err *error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, *err, time.Since(start).Seconds())
	}
}

func nonRetryable(err error) error {
	return temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
}
