package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/daverbj/solana-llm-integration/service/db"
	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

const testAddress = "11111111111111111111111111111111"

// Mock Solana Client
type MockSolanaClient struct {
	mock.Mock
}

func (m *MockSolanaClient) FetchBalance(ctx context.Context, addr solana.Address) (uint64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockSolanaClient) RequestAirdrop(ctx context.Context, addr solana.Address, lamports uint64) (solanago.Signature, error) {
	args := m.Called(ctx, addr, lamports)
	return args.Get(0).(solanago.Signature), args.Error(1)
}

func (m *MockSolanaClient) ConfirmTransaction(ctx context.Context, sig solanago.Signature, pollInterval, timeout time.Duration) (rpc.ConfirmationStatusType, error) {
	args := m.Called(ctx, sig, pollInterval, timeout)
	return args.Get(0).(rpc.ConfirmationStatusType), args.Error(1)
}

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) RecordAirdrop(ctx context.Context, result *solana.AirdropResult, source string) (*db.Airdrop, error) {
	args := m.Called(ctx, result, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Airdrop), args.Error(1)
}

func isNonRetryable(err error) bool {
	var appErr *temporalsdk.ApplicationError
	return errors.As(err, &appErr) && appErr.NonRetryable()
}

func TestActivities_ReadBalance(t *testing.T) {
	tests := []struct {
		name            string
		address         string
		setupMock       func(*MockSolanaClient)
		expectedBalance uint64
		expectError     bool
		expectNonRetry  bool
	}{
		{
			name:    "returns balance",
			address: testAddress,
			setupMock: func(m *MockSolanaClient) {
				m.On("FetchBalance", mock.Anything, solana.Address(testAddress)).Return(uint64(42), nil)
			},
			expectedBalance: 42,
		},
		{
			name:           "invalid address is not retryable",
			address:        "not-an-address",
			setupMock:      func(m *MockSolanaClient) {},
			expectError:    true,
			expectNonRetry: true,
		},
		{
			name:    "exhausted retries are not retried again",
			address: testAddress,
			setupMock: func(m *MockSolanaClient) {
				m.On("FetchBalance", mock.Anything, solana.Address(testAddress)).
					Return(uint64(0), &solana.RPCExhaustedError{Method: "getBalance", Attempts: 5, Err: errors.New("timeout")})
			},
			expectError:    true,
			expectNonRetry: true,
		},
		{
			name:    "other errors stay retryable",
			address: testAddress,
			setupMock: func(m *MockSolanaClient) {
				m.On("FetchBalance", mock.Anything, solana.Address(testAddress)).
					Return(uint64(0), context.DeadlineExceeded)
			},
			expectError: true,
		},
		{
			name:    "undecodable address is not retryable",
			address: testAddress,
			setupMock: func(m *MockSolanaClient) {
				m.On("FetchBalance", mock.Anything, solana.Address(testAddress)).
					Return(uint64(0), &solana.InvalidAddressError{Address: testAddress, Reason: "bad length"})
			},
			expectError:    true,
			expectNonRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSolana := new(MockSolanaClient)
			tt.setupMock(mockSolana)

			activities := NewActivities(mockSolana, nil, nil, nil, slog.Default())
			balance, err := activities.ReadBalance(context.Background(), tt.address)

			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, tt.expectNonRetry, isNonRetryable(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedBalance, balance)
			}
			mockSolana.AssertExpectations(t)
		})
	}
}

func TestActivities_SubmitAirdrop(t *testing.T) {
	sig := solanago.Signature{1, 2, 3}

	t.Run("returns signature", func(t *testing.T) {
		mockSolana := new(MockSolanaClient)
		mockSolana.On("RequestAirdrop", mock.Anything, solana.Address(testAddress), uint64(1_000_000_000)).
			Return(sig, nil).Once()

		activities := NewActivities(mockSolana, nil, nil, nil, slog.Default())
		got, err := activities.SubmitAirdrop(context.Background(), SubmitAirdropInput{
			Address:  testAddress,
			Lamports: 1_000_000_000,
		})

		require.NoError(t, err)
		assert.Equal(t, sig.String(), got)
		mockSolana.AssertExpectations(t)
	})

	t.Run("faucet error is returned", func(t *testing.T) {
		mockSolana := new(MockSolanaClient)
		mockSolana.On("RequestAirdrop", mock.Anything, solana.Address(testAddress), uint64(5)).
			Return(solanago.Signature{}, errors.New("rate limited"))

		activities := NewActivities(mockSolana, nil, nil, nil, slog.Default())
		_, err := activities.SubmitAirdrop(context.Background(), SubmitAirdropInput{Address: testAddress, Lamports: 5})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})
}

func TestActivities_ConfirmAirdrop(t *testing.T) {
	sig := solanago.Signature{1, 2, 3}
	input := ConfirmAirdropInput{
		Signature:    sig.String(),
		PollInterval: 500 * time.Millisecond,
		Timeout:      time.Minute,
	}

	t.Run("confirmed", func(t *testing.T) {
		mockSolana := new(MockSolanaClient)
		mockSolana.On("ConfirmTransaction", mock.Anything, sig, input.PollInterval, input.Timeout).
			Return(rpc.ConfirmationStatusConfirmed, nil)

		activities := NewActivities(mockSolana, nil, nil, nil, slog.Default())
		status, err := activities.ConfirmAirdrop(context.Background(), input)

		require.NoError(t, err)
		assert.Equal(t, "confirmed", status)
	})

	t.Run("transaction error is not retryable", func(t *testing.T) {
		mockSolana := new(MockSolanaClient)
		mockSolana.On("ConfirmTransaction", mock.Anything, sig, input.PollInterval, input.Timeout).
			Return(rpc.ConfirmationStatusType(""), &solana.TransactionError{Signature: sig.String(), Err: "InstructionError"})

		activities := NewActivities(mockSolana, nil, nil, nil, slog.Default())
		_, err := activities.ConfirmAirdrop(context.Background(), input)

		require.Error(t, err)
		assert.True(t, isNonRetryable(err))
	})

	t.Run("malformed signature", func(t *testing.T) {
		activities := NewActivities(new(MockSolanaClient), nil, nil, nil, slog.Default())
		_, err := activities.ConfirmAirdrop(context.Background(), ConfirmAirdropInput{Signature: "0OIl"})

		require.Error(t, err)
		assert.True(t, isNonRetryable(err))
	})
}

func TestActivities_RecordAirdrop(t *testing.T) {
	result := &solana.AirdropResult{
		Address:            testAddress,
		Signature:          "sig1",
		RequestedLamports:  1_000_000_000,
		NewBalance:         1_000_000_000,
		Delta:              1_000_000_000,
		ConfirmationStatus: "confirmed",
	}

	t.Run("writes ledger and publishes", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("RecordAirdrop", mock.Anything, result, "workflow").Return(&db.Airdrop{Signature: "sig1"}, nil)
		publisher := natspkg.NewMockPublisher()

		activities := NewActivities(new(MockSolanaClient), mockStore, publisher, nil, slog.Default())
		err := activities.RecordAirdrop(context.Background(), RecordAirdropInput{Result: result, Source: "workflow"})

		require.NoError(t, err)
		mockStore.AssertExpectations(t)
		events := publisher.EventsFor(testAddress)
		require.Len(t, events, 1)
		assert.Equal(t, "sig1", events[0].Signature)
		assert.Equal(t, "workflow", events[0].Source)
	})

	t.Run("sink failures are swallowed", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("RecordAirdrop", mock.Anything, result, "api").Return(nil, errors.New("db down"))
		publisher := natspkg.NewMockPublisher()
		publisher.FailWith(errors.New("nats down"))

		activities := NewActivities(new(MockSolanaClient), mockStore, publisher, nil, slog.Default())
		err := activities.RecordAirdrop(context.Background(), RecordAirdropInput{Result: result, Source: "api"})

		assert.NoError(t, err)
		assert.Empty(t, publisher.Events())
	})

	t.Run("no sinks configured", func(t *testing.T) {
		activities := NewActivities(new(MockSolanaClient), nil, nil, nil, slog.Default())
		assert.NoError(t, activities.RecordAirdrop(context.Background(), RecordAirdropInput{Result: result}))
	})
}
