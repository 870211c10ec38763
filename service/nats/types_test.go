package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

func TestFromAirdropResult(t *testing.T) {
	result := &solana.AirdropResult{
		Address:            "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Signature:          "sig",
		RequestedLamports:  1_000_000_000,
		InitialBalance:     5,
		NewBalance:         1_000_000_005,
		Delta:              1_000_000_000,
		ConfirmationStatus: "confirmed",
	}

	event := FromAirdropResult(result, "chat")

	assert.Equal(t, result.Address, event.Address)
	assert.Equal(t, result.Delta, event.Delta)
	assert.Equal(t, "chat", event.Source)
	assert.WithinDuration(t, time.Now(), event.PublishedAt, 5*time.Second)
	assert.Equal(t, "airdrops."+result.Address, Subject(event.Address))

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"requested_lamports":1000000000`)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishAirdrop(ctx, &AirdropEvent{Address: "a"}))
	require.NoError(t, m.PublishAirdrop(ctx, &AirdropEvent{Address: "b"}))
	assert.Len(t, m.Events(), 2)
	assert.Len(t, m.EventsFor("a"), 1)

	m.FailWith(errors.New("down"))
	assert.Error(t, m.PublishAirdrop(ctx, &AirdropEvent{Address: "c"}))
	assert.Len(t, m.Events(), 2)

	m.FailWith(nil)
	require.NoError(t, m.PublishAirdrop(ctx, &AirdropEvent{Address: "a"}))
	assert.Len(t, m.EventsFor("a"), 2)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}
