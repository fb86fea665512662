package password

import (
	"errors"
	"fmt"
)

var (
	ErrPasswordTooShort = errors.New("password: too short")
	ErrPasswordTooLong  = errors.New("password: too long")
	ErrWeakPassword     = errors.New("password: too easy to guess")
	ErrInvalidHash      = errors.New("password: malformed or unsupported hash")
)

// PolicyError names the rule a password broke, with the limits a sign-up
// screen needs to explain it. It unwraps to one of the Err* sentinels.
type PolicyError struct {
	Rule error
	Min  int
	Max  int
}

func (e *PolicyError) Error() string {
	switch e.Rule {
	case ErrPasswordTooShort:
		return fmt.Sprintf("password must be at least %d characters", e.Min)
	case ErrPasswordTooLong:
		return fmt.Sprintf("password must be at most %d characters", e.Max)
	default:
		return "password is too easy to guess"
	}
}

func (e *PolicyError) Unwrap() error { return e.Rule }
