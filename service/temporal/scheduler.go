package temporal

import (
	"context"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

// Workflow status values reported by AirdropStatus.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
	StatusCanceled  = "canceled"
	StatusUnknown   = "unknown"
)

// AirdropStatus is the observable state of an airdrop workflow.
type AirdropStatus struct {
	WorkflowID string                `json:"workflow_id"`
	Status     string                `json:"status"`
	Stage      string                `json:"stage,omitempty"`
	Result     *solana.AirdropResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// AirdropScheduler starts durable airdrops and reports on them.
type AirdropScheduler interface {
	// StartAirdrop starts an AirdropWorkflow and returns its workflow ID.
	StartAirdrop(ctx context.Context, input AirdropWorkflowInput) (string, error)

	// GetAirdropStatus returns the state of the workflow with the given ID.
	// It returns ErrWorkflowNotFound when no such workflow exists.
	GetAirdropStatus(ctx context.Context, id string) (*AirdropStatus, error)
}
