package server

import (
	"context"
	"log/slog"

	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// airdropRecorder writes completed airdrops to the ledger and publishes them.
// Both sinks are optional and their failures never fail the request.
type airdropRecorder struct {
	ledger    AirdropLedger
	publisher EventPublisher
	logger    *slog.Logger
}

func (r *airdropRecorder) record(ctx context.Context, result *solana.AirdropResult, source string) {
	if r == nil || result == nil {
		return
	}

	if r.ledger != nil {
		if _, err := r.ledger.RecordAirdrop(ctx, result, source); err != nil {
			r.logger.ErrorContext(ctx, "failed to record airdrop",
				"signature", result.Signature,
				"address", result.Address,
				"error", err,
			)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishAirdrop(ctx, natspkg.FromAirdropResult(result, source)); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish airdrop event",
				"signature", result.Signature,
				"address", result.Address,
				"error", err,
			)
		}
	}
}
