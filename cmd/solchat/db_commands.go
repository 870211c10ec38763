package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

func listAirdropsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-airdrops",
		Usage:   "List recorded airdrops straight from the ledger",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"w"},
				Usage:   "Only airdrops to this wallet",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
				Usage:   "Maximum number of airdrops to show",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of airdrops to skip",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.String("address")
			if address != "" {
				if _, err := solana.ParseAddress(address); err != nil {
					return err
				}
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			airdrops, err := store.ListAirdropsByAddress(context.Background(), db.ListAirdropsParams{
				Address: address,
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list airdrops: %w", err)
			}
			if airdrops == nil {
				airdrops = []*db.Airdrop{}
			}

			if jsonMode(c) {
				return outputJSON(c, airdrops)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SIGNATURE\tADDRESS\tCHANGE (SOL)\tSTATUS\tSOURCE\tCREATED")
			for _, a := range airdrops {
				fmt.Fprintf(tw, "%s\t%s\t%+.4f\t%s\t%s\t%s\n",
					shorten(a.Signature),
					a.Address,
					float64(a.Delta)/1e9,
					a.ConfirmationStatus,
					a.Source,
					a.CreatedAt.Format(time.RFC3339),
				)
			}
			tw.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d airdrops\n", len(airdrops))
			return nil
		},
	}
}

func getAirdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-airdrop",
		Usage:     "Get a recorded airdrop by signature",
		Aliases:   []string{"get"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: airdrop signature")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			airdrop, err := store.GetAirdrop(context.Background(), c.Args().First())
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("airdrop %s not found", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get airdrop: %w", err)
			}

			if jsonMode(c) {
				return outputJSON(c, airdrop)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Signature:      %s\n", airdrop.Signature)
			fmt.Fprintf(w, "Address:        %s\n", airdrop.Address)
			fmt.Fprintf(w, "Requested:      %d lamports\n", airdrop.RequestedLamports)
			fmt.Fprintf(w, "Before:         %d lamports\n", airdrop.InitialBalance)
			fmt.Fprintf(w, "After:          %d lamports\n", airdrop.NewBalance)
			fmt.Fprintf(w, "Change:         %+.9f SOL (%d lamports)\n", float64(airdrop.Delta)/1e9, airdrop.Delta)
			fmt.Fprintf(w, "Status:         %s\n", airdrop.ConfirmationStatus)
			fmt.Fprintf(w, "Source:         %s\n", airdrop.Source)
			fmt.Fprintf(w, "Created At:     %s\n", airdrop.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}
