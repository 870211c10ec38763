package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/daverbj/solana-llm-integration/client"
)

func workflowCommands() *cli.Command {
	return &cli.Command{
		Name:  "workflow",
		Usage: "Durable airdrop commands (requires Temporal on the server)",
		Subcommands: []*cli.Command{
			workflowStartCommand(),
			workflowStatusCommand(),
			workflowWaitCommand(),
		},
	}
}

func pollIntervalFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Value:   2 * time.Second,
		Usage:   "How often to poll the workflow status",
	}
}

func workflowStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a durable airdrop and print its workflow ID",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount of SOL to request (server default when unset)",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Block until the workflow finishes",
			},
			pollIntervalFlag(),
			timeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			addr, err := addressArg(c)
			if err != nil {
				return err
			}
			amount := c.Float64("amount")
			if c.IsSet("amount") && amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}

			cl := newClient(c)
			id, err := cl.StartAirdropWorkflow(c.Context, addr.String(), amount)
			if err != nil {
				return fmt.Errorf("failed to start airdrop workflow: %w", err)
			}

			if c.Bool("wait") {
				if !jsonMode(c) {
					fmt.Fprintf(os.Stderr, "Started workflow %s, waiting...\n", id)
				}
				return waitAndPrint(c, cl, id)
			}

			if jsonMode(c) {
				return outputJSON(c, map[string]string{"workflow_id": id})
			}
			fmt.Fprintf(c.App.Writer, "✓ Airdrop workflow started\n")
			fmt.Fprintf(c.App.Writer, "  Workflow ID: %s\n", id)
			fmt.Fprintf(c.App.Writer, "  Check with:  solchat workflow status %s\n", id)
			return nil
		},
	}
}

func workflowStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the state of a durable airdrop",
		ArgsUsage: "WORKFLOW_ID",
		Flags:     []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow ID")
			}

			status, err := newClient(c).AirdropWorkflowStatus(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get workflow status: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, status)
			}
			printWorkflowStatus(c, status)
			return nil
		},
	}
}

func workflowWaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "wait",
		Usage:     "Block until a durable airdrop finishes",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			pollIntervalFlag(),
			timeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow ID")
			}
			return waitAndPrint(c, newClient(c), c.Args().First())
		},
	}
}

// waitAndPrint polls until the workflow leaves the running state and prints
// the final status. A failed workflow is reported as an error.
func waitAndPrint(c *cli.Context, cl *client.Client, id string) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	status, err := waitForWorkflow(ctx, cl, id, c.Duration("interval"))
	if err != nil {
		return err
	}

	if jsonMode(c) {
		if err := outputJSON(c, status); err != nil {
			return err
		}
	} else {
		printWorkflowStatus(c, status)
	}

	if status.Status != "completed" {
		return fmt.Errorf("workflow %s ended %s", id, status.Status)
	}
	return nil
}

func waitForWorkflow(ctx context.Context, cl *client.Client, id string, interval time.Duration) (*client.WorkflowStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := cl.AirdropWorkflowStatus(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get workflow status: %w", err)
		}
		if status.Status != "running" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for workflow %s (last stage: %s): %w", id, status.Stage, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printWorkflowStatus(c *cli.Context, status *client.WorkflowStatus) {
	w := c.App.Writer
	fmt.Fprintf(w, "Workflow ID: %s\n", status.WorkflowID)
	fmt.Fprintf(w, "Status:      %s\n", status.Status)
	if status.Stage != "" {
		fmt.Fprintf(w, "Stage:       %s\n", status.Stage)
	}
	if status.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", status.Error)
	}
	if status.Result != nil {
		printAirdropResult(c, status.Result)
	}
}
