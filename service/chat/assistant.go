package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// Reply statuses.
const (
	StatusNeedsAddress   = "needs_address"
	StatusInvalidAddress = "invalid_address"
	StatusOK             = "ok"
)

// BalanceReader reads wallet balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, addr solana.Address) (*solana.BalanceReading, error)
}

// AirdropRequester credits devnet SOL to an address.
type AirdropRequester interface {
	RequestAirdrop(ctx context.Context, addr solana.Address, amount float64) (*solana.AirdropResult, error)
}

// Reply is the answer to one chat query.
type Reply struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Intent  intent.Intent          `json:"intent"`
	Balance *solana.BalanceReading `json:"balance,omitempty"`
	Airdrop *solana.AirdropResult  `json:"airdrop,omitempty"`
}

// Assistant answers free-text queries by resolving an intent and dispatching
// the matching wallet operation.
type Assistant struct {
	resolver      intent.Resolver
	balances      BalanceReader
	airdrops      AirdropRequester
	defaultAmount float64
	logger        *slog.Logger
}

// NewAssistant creates an Assistant. defaultAmount is used when an airdrop
// query does not name an amount.
func NewAssistant(resolver intent.Resolver, balances BalanceReader, airdrops AirdropRequester, defaultAmount float64, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		resolver:      resolver,
		balances:      balances,
		airdrops:      airdrops,
		defaultAmount: defaultAmount,
		logger:        logger,
	}
}

// Handle resolves query and runs the requested operation. No RPC call is made
// unless the intent carries a valid address. Errors from intent resolution or
// the operations are returned unchanged.
func (a *Assistant) Handle(ctx context.Context, query string) (*Reply, error) {
	in, err := a.resolver.Extract(ctx, query)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Intent: in}

	if in.NeedsAddress || in.Action == intent.ActionRequestAddress || in.Address == nil {
		reply.Status = StatusNeedsAddress
		reply.Message = needsAddressMessage(in.Action)
		return reply, nil
	}

	addr, err := solana.ParseAddress(strings.TrimSpace(*in.Address))
	if err != nil {
		a.logger.InfoContext(ctx, "rejected address from query", "address", *in.Address)
		reply.Status = StatusInvalidAddress
		reply.Message = fmt.Sprintf("%q doesn't look like a Solana address. Addresses are 32 to 44 base58 characters.", *in.Address)
		return reply, nil
	}

	switch in.Action {
	case intent.ActionGetBalance:
		reading, err := a.balances.GetBalance(ctx, addr)
		if err != nil {
			return nil, err
		}
		reply.Status = StatusOK
		reply.Balance = reading
		reply.Message = fmt.Sprintf("The balance of %s is %s SOL.", addr, formatSOL(reading.SOL))

	case intent.ActionRequestAirdrop:
		amount := a.defaultAmount
		if in.Amount != nil {
			amount = *in.Amount
		}
		result, err := a.airdrops.RequestAirdrop(ctx, addr, amount)
		if err != nil {
			return nil, err
		}
		reply.Status = StatusOK
		reply.Airdrop = result
		reply.Message = fmt.Sprintf("Airdropped %s SOL to %s. New balance: %s SOL.",
			formatSOL(result.DeltaSOL), addr, formatSOL(solana.LamportsToSOL(result.NewBalance)))

	default:
		return nil, fmt.Errorf("unsupported action %q", in.Action)
	}

	a.logger.InfoContext(ctx, "chat query handled",
		"action", in.Action,
		"address", addr.String(),
	)
	return reply, nil
}

func needsAddressMessage(action intent.Action) string {
	switch action {
	case intent.ActionRequestAirdrop:
		return "Which wallet should receive the airdrop? Please provide a Solana address."
	case intent.ActionGetBalance:
		return "Please provide a Solana wallet address so I can check its balance."
	default:
		return "Please provide a Solana wallet address."
	}
}

func formatSOL(sol float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.9f", sol), "0")
	return strings.TrimSuffix(s, ".")
}
