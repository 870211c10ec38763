package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverbj/solana-llm-integration/service/db"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	os.Unsetenv("SERVER_URL")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"solchat"}, args...))
	return out.String(), err
}

func TestBalanceCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/balance/"+testWallet, r.URL.Path)
		w.Write([]byte(`{"address":"` + testWallet + `","lamports":1500000000,"sol":1.5}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "balance", testWallet)
	require.NoError(t, err)
	assert.Contains(t, output, "1.500000000 SOL (1500000000 lamports)")
}

func TestBalanceCommand_InvalidAddress(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "balance", "not-an-address")
	require.Error(t, err)
	assert.ErrorIs(t, err, solana.ErrInvalidAddress)
	assert.False(t, called.Load(), "invalid addresses are rejected before any request")
}

func TestAirdropCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 0.5, body["amount"])

		w.Write([]byte(`{
			"address": "` + testWallet + `",
			"signature": "sig1",
			"requested_lamports": 500000000,
			"initial_balance": 1000000000,
			"new_balance": 1500000000,
			"delta": 500000000,
			"delta_sol": 0.5,
			"confirmation_status": "confirmed"
		}`))
	}))
	defer server.Close()

	t.Run("text", func(t *testing.T) {
		output, err := runApp(t, "--server-url", server.URL, "airdrop", "--amount", "0.5", testWallet)
		require.NoError(t, err)
		assert.Contains(t, output, "✓ Airdrop Confirmed")
		assert.Contains(t, output, "sig1")
		assert.Contains(t, output, "+0.500000000 SOL")
	})

	t.Run("jq", func(t *testing.T) {
		output, err := runApp(t, "--server-url", server.URL, "--jq", ".signature", "airdrop", "--amount", "0.5", testWallet)
		require.NoError(t, err)
		assert.Equal(t, "sig1\n", output)
	})
}

func TestAirdropCommand_NonPositiveAmount(t *testing.T) {
	_, err := runApp(t, "airdrop", "--amount", "0", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--amount must be positive")
}

func TestAirdropCommand_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"airdrop failed at submit: rate limited"}`))
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "airdrop", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAskCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is my balance", body["query"])

		w.Write([]byte(`{
			"status": "needs_address",
			"message": "Please provide a Solana wallet address so I can check its balance.",
			"intent": {"action":"GetBalance","address":null,"needs_address":true}
		}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "ask", "what", "is", "my", "balance")
	require.NoError(t, err)
	assert.Contains(t, output, "Please provide a Solana wallet address")
}

func TestAskCommand_RequiresQuery(t *testing.T) {
	_, err := runApp(t, "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a query is required")
}

func TestIntentCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"action":"RequestAirdrop","address":"` + testWallet + `","needs_address":false,"amount":2}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "intent", "send 2 SOL to "+testWallet)
	require.NoError(t, err)
	assert.Contains(t, output, "RequestAirdrop")
	assert.Contains(t, output, testWallet)
	assert.Contains(t, output, "2 SOL")
}

func TestHistoryCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/airdrops", r.URL.Path)
		assert.Equal(t, testWallet, r.URL.Query().Get("address"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"airdrops":[
			{"signature":"sig1","address":"` + testWallet + `","delta":1000000000,"source":"chat","created_at":"2026-01-02T03:04:05Z"},
			{"signature":"sig2","address":"` + testWallet + `","delta":500000000,"source":"api","created_at":"2026-01-01T03:04:05Z"}
		],"count":2}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "history", "--address", testWallet, "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, output, "SIGNATURE")
	assert.Contains(t, output, "sig1")
	assert.Contains(t, output, "+1.0000")
	assert.Contains(t, output, "chat")

	output, err = runApp(t, "--server-url", server.URL, "--jq", "map(.delta) | add", "history", "--address", testWallet, "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "1500000000\n", output)
}

func TestValidateCommand(t *testing.T) {
	output, err := runApp(t, "validate", testWallet)
	require.NoError(t, err)
	assert.Contains(t, output, "is a valid Solana address")

	_, err = runApp(t, "validate", "0OIl")
	require.Error(t, err)
	assert.ErrorIs(t, err, solana.ErrInvalidAddress)

	output, err = runApp(t, "--json", "validate", "0OIl")
	require.Error(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.Equal(t, false, result["valid"])
}

func TestWorkflowStartCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/airdrop-workflows", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"workflow_id":"airdrop-123","status_url":"/api/v1/airdrop-workflows/airdrop-123"}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "workflow", "start", testWallet)
	require.NoError(t, err)
	assert.Contains(t, output, "airdrop-123")
}

func TestWorkflowWaitCommand(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/airdrop-workflows/airdrop-123", r.URL.Path)
		if polls.Add(1) < 3 {
			w.Write([]byte(`{"workflow_id":"airdrop-123","status":"running","stage":"confirm"}`))
			return
		}
		w.Write([]byte(`{"workflow_id":"airdrop-123","status":"completed","stage":"done","result":{"signature":"sig1","delta":1000000000,"delta_sol":1}}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "workflow", "wait", "--interval", "10ms", "airdrop-123")
	require.NoError(t, err)
	assert.Equal(t, int32(3), polls.Load())
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "sig1")
}

func TestWorkflowWaitCommand_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"workflow_id":"airdrop-9","status":"failed","error":"airdrop failed at submit"}`))
	}))
	defer server.Close()

	output, err := runApp(t, "--server-url", server.URL, "workflow", "wait", "--interval", "10ms", "airdrop-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ended failed")
	assert.Contains(t, output, "airdrop failed at submit")
}

func TestWorkflowStatusCommand_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"workflow not found"}`))
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "workflow", "status", "airdrop-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow not found")
}

func TestHealthCommand(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer healthy.Close()

	output, err := runApp(t, "--server-url", healthy.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, output, "Server is healthy")

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()

	_, err = runApp(t, "--server-url", unhealthy.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status: 500")
}

func TestVersionCommand(t *testing.T) {
	output, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, output, "solchat CLI")
	assert.Contains(t, output, "Version: dev")
}

func TestOutputJQ(t *testing.T) {
	doc := map[string]interface{}{
		"address": testWallet,
		"items":   []int{1, 2, 3},
	}

	tests := []struct {
		name    string
		filter  string
		want    string
		wantErr bool
	}{
		{name: "raw string", filter: ".address", want: testWallet + "\n"},
		{name: "number", filter: ".items | length", want: "3\n"},
		{name: "multiple results", filter: ".items[]", want: "1\n2\n3\n"},
		{name: "parse error", filter: ".items[", wantErr: true},
		{name: "runtime error", filter: ".address | keys", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := outputJQ(&buf, tt.filter, doc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEventFilter(t *testing.T) {
	event := `{"address":"` + testWallet + `","delta":1000000000,"source":"chat"}`

	tests := []struct {
		name  string
		exprs []string
		data  string
		want  bool
	}{
		{name: "no filters", data: event, want: true},
		{name: "source match", exprs: []string{`.source == "chat"`}, data: event, want: true},
		{name: "source mismatch", exprs: []string{`.source == "api"`}, data: event, want: false},
		{name: "all must match", exprs: []string{`.source == "chat"`, `.delta > 2000000000`}, data: event, want: false},
		{name: "null is falsy", exprs: []string{`.missing`}, data: event, want: false},
		{name: "invalid JSON", exprs: []string{`.source`}, data: `not-json`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := compileEventFilter(tt.exprs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filter.match([]byte(tt.data)))
		})
	}

	_, err := compileEventFilter([]string{".source =="})
	assert.Error(t, err)
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"wallet":"all wallets"}`,
		"",
		": keepalive",
		"",
		"event: airdrop",
		`data: {"signature":"sig1","address":"` + testWallet + `","delta":1000000000,"source":"api"}`,
		"",
		"event: airdrop",
		`data: {"signature":"sig2","address":"` + testWallet + `","delta":500000000,"source":"chat"}`,
		"",
	}, "\n")

	var events []string
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"connected", "airdrop", "airdrop"}, events)

	filter, err := compileEventFilter([]string{`.source == "chat"`})
	require.NoError(t, err)

	var out bytes.Buffer
	err = readSSE(strings.NewReader(stream), func(event, data string) error {
		return handleSSEEvent(&out, event, data, true, filter)
	})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "sig1")
	assert.Contains(t, out.String(), "sig2")
}

func TestHandleSSEEvent_Error(t *testing.T) {
	var out bytes.Buffer
	err := handleSSEEvent(&out, "error", `{"error": "failed to subscribe"}`, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}

func TestDBListAirdropsCommand(t *testing.T) {
	store := db.NewTestStore(t)

	_, err := store.RecordAirdrop(context.Background(), &solana.AirdropResult{
		Address:            testWallet,
		Signature:          "cli-test-sig",
		RequestedLamports:  1_000_000_000,
		InitialBalance:     0,
		NewBalance:         1_000_000_000,
		Delta:              1_000_000_000,
		ConfirmationStatus: "confirmed",
	}, "api")
	require.NoError(t, err)

	output, err := runApp(t, "--database-url", db.TestDatabaseURL(), "--json", "db", "list-airdrops", "--address", testWallet)
	require.NoError(t, err)

	var airdrops []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &airdrops))
	require.Len(t, airdrops, 1)
	assert.Equal(t, "cli-test-sig", airdrops[0]["signature"])

	_, err = runApp(t, "--database-url", db.TestDatabaseURL(), "db", "get-airdrop", "missing-sig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDBCommands_RequireDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	_, err := runApp(t, "db", "list-airdrops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}
