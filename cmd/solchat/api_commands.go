package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/daverbj/solana-llm-integration/client"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// timeoutFlag bounds a whole API call, including the wait for airdrop confirmation.
func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Value:   3 * time.Minute,
		Usage:   "Request timeout",
	}
}

// newClient builds an API client for the --server-url flag.
func newClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	var httpClient *http.Client
	if timeout := c.Duration("timeout"); timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}
	return client.NewClient(strings.TrimRight(c.String("server-url"), "/"), httpClient, logger)
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", fmt.Errorf("a query is required")
	}
	return query, nil
}

func addressArg(c *cli.Context) (solana.Address, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("requires exactly one argument: wallet address")
	}
	return solana.ParseAddress(c.Args().First())
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Aliases:   []string{"chat"},
		Usage:     "Ask the assistant in plain English",
		ArgsUsage: "QUERY...",
		Description: `Resolve the query into an action and run it.

Examples:
  solchat ask what is the balance of 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM
  solchat ask "airdrop 0.5 SOL to 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"`,
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			query, err := queryArg(c)
			if err != nil {
				return err
			}

			reply, err := newClient(c).Chat(c.Context, query)
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, reply)
			}

			w := c.App.Writer
			fmt.Fprintln(w, reply.Message)
			if reply.Airdrop != nil {
				fmt.Fprintf(w, "  Signature: %s\n", reply.Airdrop.Signature)
			}
			return nil
		},
	}
}

func intentCommand() *cli.Command {
	return &cli.Command{
		Name:      "intent",
		Usage:     "Show how a query is understood without running it",
		ArgsUsage: "QUERY...",
		Flags:     []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			query, err := queryArg(c)
			if err != nil {
				return err
			}

			in, err := newClient(c).Intent(c.Context, query)
			if err != nil {
				return fmt.Errorf("intent resolution failed: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, in)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Action:        %s\n", in.Action)
			if in.Address != nil {
				fmt.Fprintf(w, "Address:       %s\n", *in.Address)
			} else {
				fmt.Fprintf(w, "Address:       (none)\n")
			}
			fmt.Fprintf(w, "Needs Address: %t\n", in.NeedsAddress)
			if in.Amount != nil {
				fmt.Fprintf(w, "Amount:        %g SOL\n", *in.Amount)
			}
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Read the balance of a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			addr, err := addressArg(c)
			if err != nil {
				return err
			}

			reading, err := newClient(c).Balance(c.Context, addr.String())
			if err != nil {
				return fmt.Errorf("failed to read balance: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, reading)
			}

			fmt.Fprintf(c.App.Writer, "Address: %s\n", reading.Address)
			fmt.Fprintf(c.App.Writer, "Balance: %.9f SOL (%d lamports)\n", reading.SOL, reading.Lamports)
			return nil
		},
	}
}

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request devnet SOL and wait for the balance to change",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount of SOL to request (server default when unset)",
			},
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

			if !jsonMode(c) {
				fmt.Fprintf(os.Stderr, "Requesting airdrop for %s...\n", addr)
			}

			result, err := newClient(c).Airdrop(c.Context, addr.String(), amount)
			if err != nil {
				return fmt.Errorf("airdrop failed: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, result)
			}
			printAirdropResult(c, result)
			return nil
		},
	}
}

func printAirdropResult(c *cli.Context, result *solana.AirdropResult) {
	w := c.App.Writer
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "✓ Airdrop Confirmed")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Signature:   %s\n", result.Signature)
	fmt.Fprintf(w, "Address:     %s\n", result.Address)
	fmt.Fprintf(w, "Requested:   %.9f SOL\n", solana.LamportsToSOL(result.RequestedLamports))
	fmt.Fprintf(w, "Before:      %.9f SOL\n", solana.LamportsToSOL(result.InitialBalance))
	fmt.Fprintf(w, "After:       %.9f SOL\n", solana.LamportsToSOL(result.NewBalance))
	fmt.Fprintf(w, "Change:      %+.9f SOL\n", result.DeltaSOL)
	fmt.Fprintf(w, "Status:      %s\n", result.ConfirmationStatus)
	fmt.Fprintln(w, rule)
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded airdrops, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"w"},
				Usage:   "Only airdrops to this wallet",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Maximum number of airdrops to show",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of airdrops to skip",
			},
			timeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			address := c.String("address")
			if address != "" {
				if _, err := solana.ParseAddress(address); err != nil {
					return err
				}
			}

			records, err := newClient(c).ListAirdrops(c.Context, client.ListAirdropsOptions{
				Address: address,
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list airdrops: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, records)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SIGNATURE\tADDRESS\tCHANGE (SOL)\tSOURCE\tCREATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%+.4f\t%s\t%s\n",
					shorten(r.Signature),
					r.Address,
					float64(r.Delta)/1e9,
					r.Source,
					r.CreatedAt.Format(time.RFC3339),
				)
			}
			tw.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d airdrops\n", len(records))
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that a string is a well-formed Solana address (no network access)",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			address := c.Args().First()
			_, err := solana.ParseAddress(address)

			if jsonMode(c) {
				out := map[string]interface{}{"address": address, "valid": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				if outErr := outputJSON(c, out); outErr != nil {
					return outErr
				}
				return err
			}

			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ %s is a valid Solana address\n", address)
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := strings.TrimRight(c.String("server-url"), "/")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				fmt.Fprintf(c.App.Writer, "✓ Server is healthy (status: %d)\n", resp.StatusCode)
				fmt.Fprintf(c.App.Writer, "  URL: %s\n", serverURL)
				return nil
			}

			return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "solchat CLI\n")
			fmt.Fprintf(c.App.Writer, "  Version: %s\n", version)
			fmt.Fprintf(c.App.Writer, "  Commit:  %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  Built:   %s\n", date)
			return nil
		},
	}
}

// shorten abbreviates long signatures for table output.
func shorten(s string) string {
	if len(s) <= 20 {
		return s
	}
	return s[:8] + "…" + s[len(s)-8:]
}
