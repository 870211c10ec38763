package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRelayAirdrops(t *testing.T) {
	rec := httptest.NewRecorder()
	source := make(chan []byte, 3)

	event, err := json.Marshal(&natspkg.AirdropEvent{Address: testWallet, Signature: "sig1", Delta: 1_000_000_000})
	require.NoError(t, err)
	source <- []byte("not json")
	source <- event
	close(source)

	relayAirdrops(context.Background(), newSSEWriter(rec), source, time.Hour, discardLogger())

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "event: airdrop\n"))
	assert.Contains(t, body, `"signature":"sig1"`)
	assert.NotContains(t, body, "not json")
	assert.True(t, rec.Flushed)
}

func TestRelayAirdrops_Keepalive(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	relayAirdrops(ctx, newSSEWriter(rec), make(chan []byte), 5*time.Millisecond, discardLogger())

	assert.Contains(t, rec.Body.String(), ": keepalive\n\n")
}

func TestStreamAirdrops_InvalidAddress(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/stream/airdrops/{address}", handleStreamAirdrops(&SSEPublisher{logger: discardLogger()}, discardLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/stream/airdrops/0OIl", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid address")
}
