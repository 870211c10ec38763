package intent

import (
	"errors"
	"fmt"
)

// ErrIntentParse matches any *ParseError.
var ErrIntentParse = errors.New("intent could not be parsed")

// ParseError is returned when no usable intent came back from the completer,
// either because it failed or because its output stayed malformed after repair.
type ParseError struct {
	Stage string // "extract" or "repair"
	Raw   string // last completer output, empty if the call itself failed
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("intent parse failed at %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrIntentParse
}
