package solana

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/daverbj/solana-llm-integration/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// SettleMode selects how the orchestrator waits for the credited balance to become visible.
type SettleMode string

const (
	// SettleFixed sleeps for the settle delay and then reads the balance once.
	SettleFixed SettleMode = "fixed"

	// SettlePoll re-reads the balance every poll interval until it differs from the
	// initial reading or the settle timeout elapses.
	SettlePoll SettleMode = "poll"
)

// AirdropConfig holds the timing and limits of the airdrop sequence.
type AirdropConfig struct {
	SettleMode          SettleMode
	SettleDelay         time.Duration
	SettlePollInterval  time.Duration
	SettleTimeout       time.Duration
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
	MaxAmount           float64 // in SOL; zero disables the check
}

// DefaultAirdropConfig returns the devnet defaults.
func DefaultAirdropConfig() AirdropConfig {
	return AirdropConfig{
		SettleMode:          SettleFixed,
		SettleDelay:         2 * time.Second,
		SettlePollInterval:  time.Second,
		SettleTimeout:       20 * time.Second,
		ConfirmPollInterval: 500 * time.Millisecond,
		ConfirmTimeout:      60 * time.Second,
		MaxAmount:           2,
	}
}

// Airdropper sequences a faucet request: read initial balance, submit, confirm,
// settle, read new balance, compute delta. Steps run strictly in order and any
// failure aborts the whole request.
type Airdropper struct {
	client  *Client
	cfg     AirdropConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAirdropper creates an Airdropper that performs its RPC calls and waits through client.
func NewAirdropper(client *Client, cfg AirdropConfig, m *metrics.Metrics, logger *slog.Logger) *Airdropper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Airdropper{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// ToLamports converts a SOL amount to lamports, rounding to the nearest lamport.
func ToLamports(amount float64) uint64 {
	return uint64(math.Round(amount * float64(solana.LAMPORTS_PER_SOL)))
}

// ValidateAmount checks that amount is a positive, finite SOL amount within max.
// A max of zero disables the upper bound.
func ValidateAmount(amount, max float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w: must be a positive number of SOL, got %v", ErrInvalidAmount, amount)
	}
	if max > 0 && amount > max {
		return fmt.Errorf("%w: %v SOL exceeds the %v SOL limit", ErrInvalidAmount, amount, max)
	}
	if ToLamports(amount) == 0 {
		return fmt.Errorf("%w: %v SOL is less than one lamport", ErrInvalidAmount, amount)
	}
	return nil
}

// RequestAirdrop credits amount SOL to addr and returns the confirmed result.
func (a *Airdropper) RequestAirdrop(ctx context.Context, addr Address, amount float64) (*AirdropResult, error) {
	if err := ValidateAmount(amount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}
	if _, err := addr.PublicKey(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := a.run(ctx, addr, amount)
	if a.metrics != nil {
		if err != nil {
			stage := ""
			if ae, ok := err.(*AirdropError); ok {
				stage = string(ae.Stage)
			}
			a.metrics.RecordAirdrop("failed", stage, time.Since(start).Seconds())
		} else {
			a.metrics.RecordAirdrop("confirmed", "", time.Since(start).Seconds())
			a.metrics.RecordLamportsGranted(result.Delta)
		}
	}
	return result, err
}

func (a *Airdropper) run(ctx context.Context, addr Address, amount float64) (*AirdropResult, error) {
	lamports := ToLamports(amount)
	result := &AirdropResult{
		Address:           addr.String(),
		RequestedAmount:   amount,
		RequestedLamports: lamports,
	}

	// Step 1: read the starting balance
	initial, err := a.client.FetchBalance(ctx, addr)
	if err != nil {
		return nil, &AirdropError{Stage: StageReadInitial, Err: err}
	}
	result.InitialBalance = initial

	// Step 2: submit the faucet request
	sig, err := a.client.RequestAirdrop(ctx, addr, lamports)
	if err != nil {
		return nil, &AirdropError{Stage: StageSubmit, Err: err}
	}
	result.Signature = sig.String()

	// Step 3: wait for confirmed commitment
	if _, err := a.client.ConfirmTransaction(ctx, sig, a.cfg.ConfirmPollInterval, a.cfg.ConfirmTimeout); err != nil {
		return nil, &AirdropError{Stage: StageConfirm, Signature: result.Signature, Err: err}
	}

	// Step 4: let the ledger catch up, then read again
	newBalance, err := a.settle(ctx, addr, initial)
	if err != nil {
		return nil, &AirdropError{Stage: StageSettle, Signature: result.Signature, Err: err}
	}
	result.NewBalance = newBalance

	// Step 5: compute the delta
	result.Delta = int64(newBalance) - int64(initial)
	result.DeltaSOL = LamportDeltaToSOL(result.Delta)
	result.ConfirmationStatus = ConfirmationStatusConfirmed

	a.logger.InfoContext(ctx, "airdrop confirmed",
		"address", result.Address,
		"signature", result.Signature,
		"requested_lamports", lamports,
		"initial_balance", initial,
		"new_balance", newBalance,
		"delta", result.Delta,
	)
	return result, nil
}

// settle waits for the credit to be visible and returns the post-airdrop balance.
// The fixed mode is a heuristic: a confirmed transaction can still be invisible
// to the node serving the next read.
func (a *Airdropper) settle(ctx context.Context, addr Address, initial uint64) (uint64, error) {
	if a.cfg.SettleMode != SettlePoll {
		if err := a.client.sleep(ctx, a.cfg.SettleDelay); err != nil {
			return 0, fmt.Errorf("settle wait interrupted: %w", err)
		}
		return a.client.FetchBalance(ctx, addr)
	}

	interval := a.cfg.SettlePollInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxPolls := int(a.cfg.SettleTimeout / interval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	var balance uint64
	for poll := 1; poll <= maxPolls; poll++ {
		if err := a.client.sleep(ctx, interval); err != nil {
			return 0, fmt.Errorf("settle wait interrupted: %w", err)
		}
		b, err := a.client.FetchBalance(ctx, addr)
		if err != nil {
			return 0, err
		}
		balance = b
		if balance != initial {
			return balance, nil
		}
	}

	a.logger.WarnContext(ctx, "balance unchanged after settle timeout",
		"address", addr.String(),
		"balance", balance,
		"timeout", a.cfg.SettleTimeout,
	)
	return balance, nil
}
