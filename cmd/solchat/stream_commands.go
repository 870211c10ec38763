package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

func mustJQFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "must-jq",
		Usage: "jq expression an event must satisfy to be shown (repeatable, all must match)",
	}
}

// eventFilter holds compiled --must-jq expressions.
type eventFilter []*gojq.Code

func compileEventFilter(exprs []string) (eventFilter, error) {
	filter := make(eventFilter, 0, len(exprs))
	for _, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
		filter = append(filter, code)
	}
	return filter, nil
}

// match reports whether the raw JSON event satisfies every expression.
func (f eventFilter) match(data []byte) bool {
	if len(f) == 0 {
		return true
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	for _, code := range f {
		v, ok := code.Run(doc).Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream completed airdrops via SSE (HTTP)",
		ArgsUsage: "[wallet_address]",
		Flags:     []cli.Flag{mustJQFlag()},
		Action: func(c *cli.Context) error {
			serverURL := strings.TrimRight(c.String("server-url"), "/")
			walletAddress := c.Args().First()
			jsonOutput := jsonMode(c)

			if walletAddress != "" {
				if _, err := solana.ParseAddress(walletAddress); err != nil {
					return err
				}
			}
			filter, err := compileEventFilter(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			// Build SSE endpoint URL
			url := serverURL + "/api/v1/stream/airdrops"
			if walletAddress != "" {
				url += "/" + walletAddress
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				if walletAddress != "" {
					fmt.Fprintf(os.Stderr, "Connected to SSE stream for wallet: %s\n", walletAddress)
				} else {
					fmt.Fprintf(os.Stderr, "Connected to SSE stream for all wallets\n")
				}
				fmt.Fprintf(os.Stderr, "Streaming airdrops... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(c.App.Writer, event, data, jsonOutput, filter)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			if ctx.Err() != nil && !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nDisconnected\n")
			}
			return nil
		},
	}
}

// readSSE calls fn for every complete event in the stream. Comment lines are skipped.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := fn(currentEvent, currentData); err != nil {
					return err
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleSSEEvent(w io.Writer, eventType, data string, jsonOutput bool, filter eventFilter) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info map[string]interface{}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			if wallet, ok := info["wallet"].(string); ok {
				fmt.Fprintf(os.Stderr, "✓ Subscribed to: %s\n\n", wallet)
			}
		}
		return nil

	case "airdrop":
		if !filter.match([]byte(data)) {
			return nil
		}
		if jsonOutput {
			fmt.Fprintln(w, data)
			return nil
		}
		var event natspkg.AirdropEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}
		printAirdropEvent(w, &event)
		return nil

	case "error":
		var errInfo map[string]interface{}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		// Unknown event type, ignore
		return nil
	}
}

func printAirdropEvent(w io.Writer, event *natspkg.AirdropEvent) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Signature:  %s\n", event.Signature)
	fmt.Fprintf(w, "Wallet:     %s\n", event.Address)
	fmt.Fprintf(w, "Change:     %+.9f SOL\n", float64(event.Delta)/1e9)
	fmt.Fprintf(w, "Balance:    %.9f SOL\n", solana.LamportsToSOL(event.NewBalance))
	fmt.Fprintf(w, "Status:     %s\n", event.ConfirmationStatus)
	fmt.Fprintf(w, "Source:     %s\n", event.Source)
	fmt.Fprintf(w, "Published:  %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Fprintln(w)
}
