package nats

import (
	"time"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

// AirdropEvent represents a confirmed airdrop published to NATS.
// This is published to the subject "airdrops.{address}" in JetStream.
type AirdropEvent struct {
	Signature          string    `json:"signature"`
	Address            string    `json:"address"`
	RequestedLamports  uint64    `json:"requested_lamports"`
	InitialBalance     uint64    `json:"initial_balance"`
	NewBalance         uint64    `json:"new_balance"`
	Delta              int64     `json:"delta"`
	ConfirmationStatus string    `json:"confirmation_status"`
	Source             string    `json:"source"` // api, chat or workflow
	PublishedAt        time.Time `json:"published_at"`
}

// FromAirdropResult converts an airdrop result to an AirdropEvent for publishing.
func FromAirdropResult(result *solana.AirdropResult, source string) *AirdropEvent {
	return &AirdropEvent{
		Signature:          result.Signature,
		Address:            result.Address,
		RequestedLamports:  result.RequestedLamports,
		InitialBalance:     result.InitialBalance,
		NewBalance:         result.NewBalance,
		Delta:              result.Delta,
		ConfirmationStatus: result.ConfirmationStatus,
		Source:             source,
		PublishedAt:        time.Now().UTC(),
	}
}
