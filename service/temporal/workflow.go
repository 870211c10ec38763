package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

var a *Activities // for type-safe activity invocation

// StageQuery is the query type that returns the stage a running airdrop has reached.
const StageQuery = "stage"

// StageDone is reported by the stage query once the workflow has finished.
const StageDone = "done"

// AirdropWorkflowInput contains the parameters of a durable airdrop.
type AirdropWorkflowInput struct {
	Address string               `json:"address"`
	Amount  float64              `json:"amount"`
	Source  string               `json:"source"`
	Config  solana.AirdropConfig `json:"config"`
}

// AirdropWorkflow is the durable version of the airdrop sequence. It runs the
// same steps as solana.Airdropper, but each RPC step is an activity and the
// settle wait is a durable timer, so a worker restart resumes where it stopped.
//
// The workflow performs these steps:
// 1. Read the initial balance (ReadBalance activity)
// 2. Submit the faucet request (SubmitAirdrop activity, never retried)
// 3. Wait for confirmed commitment (ConfirmAirdrop activity)
// 4. Sleep for the settle period and read the new balance
// 5. Compute the delta and record the airdrop (RecordAirdrop activity)
func AirdropWorkflow(ctx workflow.Context, input AirdropWorkflowInput) (*solana.AirdropResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AirdropWorkflow started", "address", input.Address, "amount", input.Amount)

	stage := string(solana.StageReadInitial)
	if err := workflow.SetQueryHandler(ctx, StageQuery, func() (string, error) {
		return stage, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register stage query: %w", err)
	}

	cfg := withDefaults(input.Config)
	if err := solana.ValidateAmount(input.Amount, cfg.MaxAmount); err != nil {
		stage = StageDone
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidAmount", err)
	}
	if !solana.ValidAddress(input.Address) {
		stage = StageDone
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid address %q", input.Address), "InvalidAddress", nil)
	}

	// Balance reads are retried inside the solana client.
	readCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	confirmCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: cfg.ConfirmTimeout + 30*time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	lamports := solana.ToLamports(input.Amount)
	result := &solana.AirdropResult{
		Address:           input.Address,
		RequestedAmount:   input.Amount,
		RequestedLamports: lamports,
	}

	// Step 1: read the starting balance
	var initial uint64
	if err := workflow.ExecuteActivity(readCtx, a.ReadBalance, input.Address).Get(ctx, &initial); err != nil {
		stage = StageDone
		return nil, &solana.AirdropError{Stage: solana.StageReadInitial, Err: err}
	}
	result.InitialBalance = initial

	// Step 2: submit the faucet request
	stage = string(solana.StageSubmit)
	var signature string
	err := workflow.ExecuteActivity(submitCtx, a.SubmitAirdrop, SubmitAirdropInput{
		Address:  input.Address,
		Lamports: lamports,
	}).Get(ctx, &signature)
	if err != nil {
		stage = StageDone
		return nil, &solana.AirdropError{Stage: solana.StageSubmit, Err: err}
	}
	result.Signature = signature
	logger.Info("airdrop submitted", "address", input.Address, "signature", signature)

	// Step 3: wait for confirmed commitment
	stage = string(solana.StageConfirm)
	var status string
	err = workflow.ExecuteActivity(confirmCtx, a.ConfirmAirdrop, ConfirmAirdropInput{
		Signature:    signature,
		PollInterval: cfg.ConfirmPollInterval,
		Timeout:      cfg.ConfirmTimeout,
	}).Get(ctx, &status)
	if err != nil {
		stage = StageDone
		return nil, &solana.AirdropError{Stage: solana.StageConfirm, Signature: signature, Err: err}
	}

	// Step 4: settle, then read again
	stage = string(solana.StageSettle)
	newBalance, err := settleWorkflow(ctx, readCtx, input.Address, initial, cfg)
	if err != nil {
		stage = StageDone
		return nil, &solana.AirdropError{Stage: solana.StageSettle, Signature: signature, Err: err}
	}
	result.NewBalance = newBalance

	// Step 5: compute the delta and record
	result.Delta = int64(newBalance) - int64(initial)
	result.DeltaSOL = solana.LamportDeltaToSOL(result.Delta)
	result.ConfirmationStatus = solana.ConfirmationStatusConfirmed

	source := input.Source
	if source == "" {
		source = "workflow"
	}
	if err := workflow.ExecuteActivity(recordCtx, a.RecordAirdrop, RecordAirdropInput{
		Result: result,
		Source: source,
	}).Get(ctx, nil); err != nil {
		logger.Warn("failed to record airdrop", "signature", signature, "error", err)
	}

	stage = StageDone
	logger.Info("AirdropWorkflow completed successfully",
		"address", input.Address,
		"signature", signature,
		"initial_balance", initial,
		"new_balance", newBalance,
		"delta", result.Delta,
	)
	return result, nil
}

// settleWorkflow mirrors the Airdropper settle step with durable timers.
func settleWorkflow(ctx, readCtx workflow.Context, address string, initial uint64, cfg solana.AirdropConfig) (uint64, error) {
	if cfg.SettleMode != solana.SettlePoll {
		if err := workflow.Sleep(ctx, cfg.SettleDelay); err != nil {
			return 0, err
		}
		var balance uint64
		err := workflow.ExecuteActivity(readCtx, a.ReadBalance, address).Get(ctx, &balance)
		return balance, err
	}

	maxPolls := int(cfg.SettleTimeout / cfg.SettlePollInterval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	var balance uint64
	for poll := 1; poll <= maxPolls; poll++ {
		if err := workflow.Sleep(ctx, cfg.SettlePollInterval); err != nil {
			return 0, err
		}
		if err := workflow.ExecuteActivity(readCtx, a.ReadBalance, address).Get(ctx, &balance); err != nil {
			return 0, err
		}
		if balance != initial {
			return balance, nil
		}
	}

	workflow.GetLogger(ctx).Warn("balance unchanged after settle timeout",
		"address", address,
		"balance", balance,
	)
	return balance, nil
}

// withDefaults fills zero-valued timings from the devnet defaults.
func withDefaults(cfg solana.AirdropConfig) solana.AirdropConfig {
	def := solana.DefaultAirdropConfig()
	if cfg.SettleMode == "" {
		cfg.SettleMode = def.SettleMode
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.SettlePollInterval <= 0 {
		cfg.SettlePollInterval = def.SettlePollInterval
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = def.SettleTimeout
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = def.ConfirmPollInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	return cfg
}
