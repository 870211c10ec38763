package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// subscribeCommand subscribes to airdrop events straight from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to airdrop events",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to airdrop events published to NATS JetStream.

Events are published to the subject: airdrops.{wallet_address}
Without an address, events for every wallet are shown.

Example:
  solchat nats subscribe 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "solchat-cli",
			},
			mustJQFlag(),
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if address := c.Args().First(); address != "" {
				if _, err := solana.ParseAddress(address); err != nil {
					return err
				}
				subject = natspkg.Subject(address)
			}

			filter, err := compileEventFilter(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamAirdrops(c, subject, filter)
		},
	}
}

func streamAirdrops(c *cli.Context, subject string, filter eventFilter) error {
	natsURL := c.String("nats-url")
	durable := c.Bool("durable")
	consumerName := c.String("consumer-name")
	jsonOutput := jsonMode(c)
	w := c.App.Writer

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(os.Stderr, "   NATS: %s\n", natsURL)
		if durable {
			fmt.Fprintf(os.Stderr, "   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Fprintf(os.Stderr, "\nWaiting for airdrops... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}

	cons, err := js.CreateOrUpdateConsumer(c.Context, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			msg.Ack()
			if !filter.match(msg.Data()) {
				continue
			}

			var event natspkg.AirdropEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				continue
			}
			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Fprintln(w, string(data))
			} else {
				fmt.Fprintf(w, "Airdrop #%d\n", count)
				printAirdropEvent(w, &event)
			}

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\n✅ Received %d airdrops\n", count)
			}
			return nil

		case <-c.Context.Done():
			return nil
		}
	}
}

// inspectStreamCommand shows information about the airdrop JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the airdrop JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx := context.Background()
			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
