package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the operation a query asks for.
type Action string

const (
	// ActionGetBalance asks for the balance of an address.
	ActionGetBalance Action = "GetBalance"

	// ActionRequestAddress means the user has to supply an address before anything can run.
	ActionRequestAddress Action = "RequestAddress"

	// ActionRequestAirdrop asks for devnet SOL to be credited to an address.
	ActionRequestAirdrop Action = "RequestAirdrop"
)

// Actions lists every recognised action in prompt order.
var Actions = []Action{ActionGetBalance, ActionRequestAddress, ActionRequestAirdrop}

// ParseAction maps a wire value onto an Action. Unrecognised values are an error.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if strings.EqualFold(strings.TrimSpace(s), string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func (a Action) String() string {
	return string(a)
}

// NeedsAddress reports whether the action operates on an address.
func (a Action) NeedsAddress() bool {
	return a == ActionGetBalance || a == ActionRequestAirdrop
}

// UnmarshalJSON rejects unknown actions.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Intent is the structured form of a free-text query. It is produced once per
// query and not modified afterwards.
type Intent struct {
	Action       Action   `json:"action"`
	Address      *string  `json:"address"`
	NeedsAddress bool     `json:"needs_address"`
	Amount       *float64 `json:"amount,omitempty"`
}

// normalize enforces that an address-bearing action without an address asks for one.
func (i Intent) normalize() Intent {
	if i.Address != nil && isNone(*i.Address) {
		i.Address = nil
	}
	if i.Action == ActionRequestAddress {
		i.NeedsAddress = true
	}
	if i.Action.NeedsAddress() && i.Address == nil {
		i.NeedsAddress = true
	}
	return i
}

func isNone(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "null")
}
