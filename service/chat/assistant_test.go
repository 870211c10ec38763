package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type stubResolver struct {
	intent intent.Intent
	err    error
}

func (s *stubResolver) Extract(ctx context.Context, query string) (intent.Intent, error) {
	return s.intent, s.err
}

type stubBalances struct {
	reading *solana.BalanceReading
	err     error
	calls   int
}

func (s *stubBalances) GetBalance(ctx context.Context, addr solana.Address) (*solana.BalanceReading, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.reading, nil
}

type stubAirdrops struct {
	result *solana.AirdropResult
	err    error
	calls  int
	amount float64
}

func (s *stubAirdrops) RequestAirdrop(ctx context.Context, addr solana.Address, amount float64) (*solana.AirdropResult, error) {
	s.calls++
	s.amount = amount
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newAssistant(in intent.Intent, b *stubBalances, a *stubAirdrops) *Assistant {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAssistant(&stubResolver{intent: in}, b, a, 1, logger)
}

func ptr[T any](v T) *T { return &v }

func TestHandle_NeedsAddressNeverCallsRPC(t *testing.T) {
	intents := []intent.Intent{
		{Action: intent.ActionGetBalance, NeedsAddress: true},
		{Action: intent.ActionGetBalance, Address: ptr(wallet), NeedsAddress: true},
		{Action: intent.ActionRequestAirdrop, NeedsAddress: true},
		{Action: intent.ActionRequestAddress, NeedsAddress: true},
	}

	for _, in := range intents {
		b := &stubBalances{}
		a := &stubAirdrops{}

		reply, err := newAssistant(in, b, a).Handle(context.Background(), "What's my balance?")

		require.NoError(t, err)
		assert.Equal(t, StatusNeedsAddress, reply.Status)
		assert.NotEmpty(t, reply.Message)
		assert.Equal(t, 0, b.calls)
		assert.Equal(t, 0, a.calls)
	}
}

func TestHandle_BalanceForAddress(t *testing.T) {
	b := &stubBalances{reading: &solana.BalanceReading{Address: wallet, Lamports: 1_250_000_000, SOL: 1.25}}
	in := intent.Intent{Action: intent.ActionGetBalance, Address: ptr(wallet)}

	reply, err := newAssistant(in, b, &stubAirdrops{}).Handle(context.Background(), "Check balance for "+wallet)

	require.NoError(t, err)
	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, 1, b.calls)
	require.NotNil(t, reply.Balance)
	assert.Equal(t, uint64(1_250_000_000), reply.Balance.Lamports)
	assert.Contains(t, reply.Message, "1.25 SOL")
}

func TestHandle_InvalidAddress(t *testing.T) {
	b := &stubBalances{}
	in := intent.Intent{Action: intent.ActionGetBalance, Address: ptr("0xdeadbeef")}

	reply, err := newAssistant(in, b, &stubAirdrops{}).Handle(context.Background(), "balance of 0xdeadbeef")

	require.NoError(t, err)
	assert.Equal(t, StatusInvalidAddress, reply.Status)
	assert.Equal(t, 0, b.calls)
}

func TestHandle_AirdropDefaultAmount(t *testing.T) {
	a := &stubAirdrops{result: &solana.AirdropResult{
		Address:    wallet,
		NewBalance: 1_000_000_000,
		Delta:      1_000_000_000,
		DeltaSOL:   1,
	}}
	in := intent.Intent{Action: intent.ActionRequestAirdrop, Address: ptr(wallet)}

	reply, err := newAssistant(in, &stubBalances{}, a).Handle(context.Background(), "airdrop to "+wallet)

	require.NoError(t, err)
	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, float64(1), a.amount)
	require.NotNil(t, reply.Airdrop)
	assert.Contains(t, reply.Message, "Airdropped 1 SOL")
}

func TestHandle_AirdropExplicitAmount(t *testing.T) {
	a := &stubAirdrops{result: &solana.AirdropResult{Address: wallet}}
	in := intent.Intent{Action: intent.ActionRequestAirdrop, Address: ptr(wallet), Amount: ptr(0.5)}

	_, err := newAssistant(in, &stubBalances{}, a).Handle(context.Background(), "send 0.5 SOL to "+wallet)

	require.NoError(t, err)
	assert.Equal(t, 0.5, a.amount)
}

func TestHandle_PropagatesErrors(t *testing.T) {
	t.Run("intent", func(t *testing.T) {
		parseErr := &intent.ParseError{Stage: "repair", Err: errors.New("garbage")}
		assistant := NewAssistant(&stubResolver{err: parseErr}, &stubBalances{}, &stubAirdrops{}, 1, nil)

		_, err := assistant.Handle(context.Background(), "hi")
		assert.ErrorIs(t, err, intent.ErrIntentParse)
	})

	t.Run("rpc exhausted", func(t *testing.T) {
		exhausted := &solana.RPCExhaustedError{Method: "getBalance", Attempts: 5, Err: errors.New("down")}
		b := &stubBalances{err: exhausted}
		in := intent.Intent{Action: intent.ActionGetBalance, Address: ptr(wallet)}

		_, err := newAssistant(in, b, &stubAirdrops{}).Handle(context.Background(), "balance")
		assert.ErrorIs(t, err, solana.ErrRPCExhausted)
	})
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "1", formatSOL(1))
	assert.Equal(t, "0.5", formatSOL(0.5))
	assert.Equal(t, "0.000000001", formatSOL(0.000000001))
	assert.Equal(t, "0", formatSOL(0))
}
