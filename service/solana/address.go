package solana

import (
	"regexp"

	"github.com/gagliardetto/solana-go"
)

// Valid Solana address characters: base58 (no 0, O, I, l), 32 to 44 chars.
var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// Address is a base58 public key string that has passed ValidAddress.
// The zero value is not a valid address; construct it with ParseAddress.
type Address string

// ValidAddress reports whether s is syntactically a Solana address.
// It does no I/O and does not trim whitespace.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ParseAddress returns s as an Address, or an *InvalidAddressError if it
// does not match the base58 address pattern.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", &InvalidAddressError{Address: s, Reason: "address is required"}
	}
	if !ValidAddress(s) {
		return "", &InvalidAddressError{Address: s, Reason: "must be 32-44 base58 characters"}
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

// PublicKey decodes the address into a 32-byte key for RPC calls.
// Some strings that pass the pattern still decode to the wrong length.
func (a Address) PublicKey() (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(string(a))
	if err != nil {
		return solana.PublicKey{}, &InvalidAddressError{Address: string(a), Reason: err.Error()}
	}
	return pk, nil
}
