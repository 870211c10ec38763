package solana

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress matches any *InvalidAddressError.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount is returned for airdrop amounts that are not positive
	// or exceed the configured maximum.
	ErrInvalidAmount = errors.New("invalid airdrop amount")

	// ErrRPCExhausted matches any *RPCExhaustedError.
	ErrRPCExhausted = errors.New("rpc retries exhausted")

	// ErrAirdrop matches any *AirdropError.
	ErrAirdrop = errors.New("airdrop failed")
)

// InvalidAddressError reports an address that failed validation.
type InvalidAddressError struct {
	Address string
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Address, e.Reason)
}

func (e *InvalidAddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

// RPCExhaustedError is returned once every attempt of a retried RPC call has failed.
// Err is the last underlying error, unmodified.
type RPCExhaustedError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *RPCExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Method, e.Attempts, e.Err)
}

func (e *RPCExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RPCExhaustedError) Is(target error) bool {
	return target == ErrRPCExhausted
}

// TransactionError carries the transaction-level error object reported by
// the cluster for a submitted signature.
type TransactionError struct {
	Signature string
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// AirdropStage names a step of the airdrop sequence.
type AirdropStage string

const (
	StageReadInitial AirdropStage = "read_initial"
	StageSubmit      AirdropStage = "submit"
	StageConfirm     AirdropStage = "confirm"
	StageSettle      AirdropStage = "settle"
)

// AirdropError reports the stage at which an airdrop stopped.
// Signature is set once the faucet accepted the request.
type AirdropError struct {
	Stage     AirdropStage
	Signature string
	Err       error
}

func (e *AirdropError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("airdrop failed at %s (signature %s): %v", e.Stage, e.Signature, e.Err)
	}
	return fmt.Sprintf("airdrop failed at %s: %v", e.Stage, e.Err)
}

func (e *AirdropError) Unwrap() error {
	return e.Err
}

func (e *AirdropError) Is(target error) bool {
	return target == ErrAirdrop
}

// Submitted reports whether the faucet returned a signature before the failure,
// i.e. the request was sent but not confirmed.
func (e *AirdropError) Submitted() bool {
	return e.Signature != ""
}
