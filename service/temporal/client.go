package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

// ErrWorkflowNotFound is returned when no airdrop workflow has the given ID.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Client is a production implementation of AirdropScheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartAirdrop starts an AirdropWorkflow and returns its workflow ID.
func (c *Client) StartAirdrop(ctx context.Context, input AirdropWorkflowInput) (string, error) {
	id := workflowID()

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"address": input.Address,
			"source":  input.Source,
		},
	}, AirdropWorkflow, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start airdrop workflow",
			"address", input.Address,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start airdrop workflow: %w", err)
	}

	c.logger.InfoContext(ctx, "airdrop workflow started",
		"address", input.Address,
		"amount", input.Amount,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// GetAirdropStatus describes an airdrop workflow. Running workflows report the
// stage they have reached; completed ones carry the result; failed ones the error.
func (c *Client) GetAirdropStatus(ctx context.Context, id string) (*AirdropStatus, error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to describe workflow %q: %w", id, err)
	}

	info := desc.GetWorkflowExecutionInfo()
	status := &AirdropStatus{
		WorkflowID: id,
		Status:     statusName(info.GetStatus()),
	}

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		value, err := c.client.QueryWorkflow(ctx, id, "", StageQuery)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to query airdrop stage", "workflow_id", id, "error", err)
			return status, nil
		}
		if err := value.Get(&status.Stage); err != nil {
			c.logger.WarnContext(ctx, "failed to decode airdrop stage", "workflow_id", id, "error", err)
		}
	default:
		status.Stage = StageDone
		var result solana.AirdropResult
		if err := c.client.GetWorkflow(ctx, id, "").Get(ctx, &result); err != nil {
			status.Error = err.Error()
		} else {
			status.Result = &result
		}
	}

	return status, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func workflowID() string {
	return "airdrop-" + uuid.NewString()
}

func statusName(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return StatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return StatusCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return StatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return StatusTimedOut
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return StatusCanceled
	default:
		return StatusUnknown
	}
}
