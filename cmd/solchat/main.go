package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solchat",
		Usage: "Natural-language Solana devnet wallet assistant CLI",
		Description: `A command-line tool for the wallet assistant service.

Ask questions in plain English, read balances, request devnet airdrops,
follow durable airdrop workflows, and inspect the airdrop ledger and event stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			askCommand(),
			intentCommand(),
			balanceCommand(),
			airdropCommand(),
			historyCommand(),
			validateCommand(),
			workflowCommands(),
			streamCommand(),
			// Direct infrastructure access, bypassing the HTTP API
			{
				Name:  "db",
				Usage: "Airdrop ledger inspection commands",
				Subcommands: []*cli.Command{
					listAirdropsCommand(),
					getAirdropCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS airdrop event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server-url",
			Aliases: []string{"s"},
			Usage:   "Wallet assistant server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to JSON output (implies --json)",
		},
	}
}
