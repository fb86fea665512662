// Package remote classifies failures of the hosted collaborators (identity
// provider, profile/invite/membership stores) into a closed set of kinds.
//
// Stores wrap their failures in OpError with one of the sentinel kinds below.
// Anything unwrapped is treated as transient (network, timeout, 5xx).
package remote

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is).
var (
	ErrNotFound = errors.New("not_found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
)

// OpError is a typed operation error with a stable Op + Kind contract.
// Msg may include human-readable context; do not include secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// NotFound builds an OpError of kind ErrNotFound.
func NotFound(op, msg string) error { return OpError{Op: op, Kind: ErrNotFound, Msg: msg} }

// Invalid builds an OpError of kind ErrInvalid.
func Invalid(op, msg string) error { return OpError{Op: op, Kind: ErrInvalid, Msg: msg} }

// Conflict builds an OpError of kind ErrConflict.
func Conflict(op, msg string) error { return OpError{Op: op, Kind: ErrConflict, Msg: msg} }
