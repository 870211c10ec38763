package solana

import (
	"github.com/gagliardetto/solana-go"
)

// ConfirmationStatusConfirmed is the status reported on a completed airdrop.
const ConfirmationStatusConfirmed = "confirmed"

// BalanceReading is a point-in-time balance snapshot. It is never cached.
type BalanceReading struct {
	Address  string  `json:"address"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
}

// AirdropResult describes a confirmed airdrop and the balance change it produced.
type AirdropResult struct {
	Address            string  `json:"address"`
	Signature          string  `json:"signature"`
	RequestedAmount    float64 `json:"requested_amount"`
	RequestedLamports  uint64  `json:"requested_lamports"`
	InitialBalance     uint64  `json:"initial_balance"`
	NewBalance         uint64  `json:"new_balance"`
	Delta              int64   `json:"delta"`
	DeltaSOL           float64 `json:"delta_sol"`
	ConfirmationStatus string  `json:"confirmation_status"`
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// LamportDeltaToSOL converts a signed lamport difference to SOL.
func LamportDeltaToSOL(delta int64) float64 {
	return float64(delta) / float64(solana.LAMPORTS_PER_SOL)
}
