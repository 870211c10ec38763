package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daverbj/solana-llm-integration/service/metrics"
)

const (
	testAddress  = Address("11111111111111111111111111111111")
	otherAddress = Address("So11111111111111111111111111111111111111112")
)

// balanceStep is one scripted getBalance response.
type balanceStep struct {
	lamports uint64
	err      error
}

// statusStep is one scripted getSignatureStatuses response.
type statusStep struct {
	status *rpc.SignatureStatusesResult
	err    error
}

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we script what it returns, call by call. Once a script
// runs out, the last entry repeats.
type mockRPCClient struct {
	mu sync.Mutex

	balances []balanceStep
	statuses []statusStep

	airdropSig solana.Signature
	airdropErr error

	balanceCalls  int
	airdropCalls  int
	statusCalls   int
	airdropAmount uint64
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceCalls++
	if len(m.balances) == 0 {
		return nil, errors.New("no balance scripted")
	}
	idx := m.balanceCalls - 1
	if idx >= len(m.balances) {
		idx = len(m.balances) - 1
	}
	step := m.balances[idx]
	if step.err != nil {
		return nil, step.err
	}
	return &rpc.GetBalanceResult{Value: step.lamports}, nil
}

func (m *mockRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airdropCalls++
	m.airdropAmount = lamports
	if m.airdropErr != nil {
		return solana.Signature{}, m.airdropErr
	}
	return m.airdropSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if len(m.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	idx := m.statusCalls - 1
	if idx >= len(m.statuses) {
		idx = len(m.statuses) - 1
	}
	step := m.statuses[idx]
	if step.err != nil {
		return nil, step.err
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{step.status}}, nil
}

// sleepRecorder records requested waits without blocking.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(mock *mockRPCClient, rec *sleepRecorder, opts ...Option) *Client {
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return NewClient(mock, "test", metrics.NewMetrics(prometheus.NewRegistry()), testLogger(), opts...)
}

func confirmedStatus(s rpc.ConfirmationStatusType) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: 42, ConfirmationStatus: s}
}

func TestFetchBalance_FirstAttemptSucceeds(t *testing.T) {
	mock := &mockRPCClient{balances: []balanceStep{{lamports: 1_500_000_000}}}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec)

	lamports, err := client.FetchBalance(context.Background(), testAddress)

	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)
	assert.Equal(t, 1, mock.balanceCalls)
	assert.Empty(t, rec.delays)
}

func TestFetchBalance_RecoversAfterFourFailures(t *testing.T) {
	transient := errors.New("connection reset")
	mock := &mockRPCClient{balances: []balanceStep{
		{err: transient},
		{err: transient},
		{err: transient},
		{err: transient},
		{lamports: 7},
	}}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec)

	lamports, err := client.FetchBalance(context.Background(), testAddress)

	require.NoError(t, err)
	assert.Equal(t, uint64(7), lamports)
	assert.Equal(t, 5, mock.balanceCalls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second}, rec.delays)
}

func TestFetchBalance_ExhaustsRetries(t *testing.T) {
	last := errors.New("503 service unavailable")
	mock := &mockRPCClient{balances: []balanceStep{
		{err: errors.New("timeout")},
		{err: last},
	}}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec)

	_, err := client.FetchBalance(context.Background(), testAddress)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPCExhausted)
	assert.ErrorIs(t, err, last, "the final underlying error should be preserved")

	var exhausted *RPCExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "getBalance", exhausted.Method)
	assert.Equal(t, 5, exhausted.Attempts)

	assert.Equal(t, 5, mock.balanceCalls)
	assert.Len(t, rec.delays, 4, "no wait after the final attempt")
}

func TestFetchBalance_CustomAttemptsAndBackoff(t *testing.T) {
	mock := &mockRPCClient{balances: []balanceStep{{err: errors.New("boom")}}}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec,
		WithMaxAttempts(3),
		WithBackoff(ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}),
	)

	_, err := client.FetchBalance(context.Background(), testAddress)

	require.Error(t, err)
	assert.Equal(t, 3, mock.balanceCalls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
}

func TestFetchBalance_EmptyResponseIsRetried(t *testing.T) {
	mock := &nilBalanceRPC{mockRPCClient: &mockRPCClient{balances: []balanceStep{{lamports: 3}}}}
	rec := &sleepRecorder{}
	client := NewClient(mock, "test", nil, testLogger(), WithSleep(rec.sleep))

	lamports, err := client.FetchBalance(context.Background(), testAddress)

	require.NoError(t, err)
	assert.Equal(t, uint64(3), lamports)
	assert.Len(t, rec.delays, 1)
}

// nilBalanceRPC returns a nil result with no error on the first getBalance call.
type nilBalanceRPC struct {
	*mockRPCClient
	served bool
}

func (n *nilBalanceRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if !n.served {
		n.served = true
		return nil, nil
	}
	return n.mockRPCClient.GetBalance(ctx, account, commitment)
}

func TestFetchBalance_ContextCancelledDuringBackoff(t *testing.T) {
	mock := &mockRPCClient{balances: []balanceStep{{err: errors.New("boom")}}}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchBalance(ctx, testAddress)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRPCExhausted)
	assert.Equal(t, 1, mock.balanceCalls)
}

func TestFetchBalance_UndecodableAddress(t *testing.T) {
	mock := &mockRPCClient{balances: []balanceStep{{lamports: 1}}}
	client := newTestClient(mock, &sleepRecorder{})

	// 43 ones pass the pattern but decode to 43 bytes, not 32.
	_, err := client.FetchBalance(context.Background(), Address("1111111111111111111111111111111111111111111"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, 0, mock.balanceCalls)
}

func TestGetBalance_Reading(t *testing.T) {
	mock := &mockRPCClient{balances: []balanceStep{{lamports: 2_500_000_000}}}
	client := newTestClient(mock, &sleepRecorder{})

	reading, err := client.GetBalance(context.Background(), otherAddress)

	require.NoError(t, err)
	assert.Equal(t, otherAddress.String(), reading.Address)
	assert.Equal(t, uint64(2_500_000_000), reading.Lamports)
	assert.InDelta(t, 2.5, reading.SOL, 1e-9)
}

func TestRequestAirdrop_NotRetried(t *testing.T) {
	mock := &mockRPCClient{airdropErr: errors.New("429 too many requests")}
	rec := &sleepRecorder{}
	client := newTestClient(mock, rec)

	_, err := client.RequestAirdrop(context.Background(), testAddress, 1_000_000_000)

	require.Error(t, err)
	assert.Equal(t, 1, mock.airdropCalls)
	assert.Empty(t, rec.delays)
}

func TestConfirmTransaction(t *testing.T) {
	sig := solana.Signature{1, 2, 3}

	t.Run("confirmed after processing", func(t *testing.T) {
		mock := &mockRPCClient{statuses: []statusStep{
			{status: nil},
			{status: confirmedStatus(rpc.ConfirmationStatusProcessed)},
			{status: confirmedStatus(rpc.ConfirmationStatusConfirmed)},
		}}
		rec := &sleepRecorder{}
		client := newTestClient(mock, rec)

		status, err := client.ConfirmTransaction(context.Background(), sig, 500*time.Millisecond, 10*time.Second)

		require.NoError(t, err)
		assert.Equal(t, rpc.ConfirmationStatusConfirmed, status)
		assert.Equal(t, 3, mock.statusCalls)
		assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, rec.delays)
	})

	t.Run("finalized counts as confirmed", func(t *testing.T) {
		mock := &mockRPCClient{statuses: []statusStep{{status: confirmedStatus(rpc.ConfirmationStatusFinalized)}}}
		client := newTestClient(mock, &sleepRecorder{})

		status, err := client.ConfirmTransaction(context.Background(), sig, time.Second, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, rpc.ConfirmationStatusFinalized, status)
	})

	t.Run("transaction error fails immediately", func(t *testing.T) {
		mock := &mockRPCClient{statuses: []statusStep{{status: &rpc.SignatureStatusesResult{
			Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			ConfirmationStatus: rpc.ConfirmationStatusProcessed,
		}}}}
		rec := &sleepRecorder{}
		client := newTestClient(mock, rec)

		_, err := client.ConfirmTransaction(context.Background(), sig, time.Second, time.Minute)

		var txErr *TransactionError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, sig.String(), txErr.Signature)
		assert.Equal(t, 1, mock.statusCalls)
		assert.Empty(t, rec.delays)
	})

	t.Run("rpc errors keep polling", func(t *testing.T) {
		mock := &mockRPCClient{statuses: []statusStep{
			{err: errors.New("timeout")},
			{status: confirmedStatus(rpc.ConfirmationStatusConfirmed)},
		}}
		client := newTestClient(mock, &sleepRecorder{})

		_, err := client.ConfirmTransaction(context.Background(), sig, time.Second, time.Minute)

		require.NoError(t, err)
		assert.Equal(t, 2, mock.statusCalls)
	})

	t.Run("times out", func(t *testing.T) {
		mock := &mockRPCClient{statuses: []statusStep{{status: confirmedStatus(rpc.ConfirmationStatusProcessed)}}}
		rec := &sleepRecorder{}
		client := newTestClient(mock, rec)

		_, err := client.ConfirmTransaction(context.Background(), sig, time.Second, 3*time.Second)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not confirmed")
		assert.Equal(t, 3, mock.statusCalls)
		assert.Len(t, rec.delays, 2)
	})
}
