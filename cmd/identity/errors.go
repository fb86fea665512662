package identity

import "tavern/cmd/internal/remote"

var (
	ErrInvalidCredentials = remote.OpError{Op: "identity.signin", Kind: remote.ErrInvalid, Msg: "invalid email or password"}
	ErrEmailTaken         = remote.OpError{Op: "identity.signup", Kind: remote.ErrConflict, Msg: "email already registered"}
	ErrEmailNotConfirmed  = remote.OpError{Op: "identity.signin", Kind: remote.ErrInvalid, Msg: "email not confirmed"}
	ErrInvalidCode        = remote.OpError{Op: "identity.exchange", Kind: remote.ErrInvalid, Msg: "invalid or expired code"}
	ErrOAuthUnsupported   = remote.OpError{Op: "identity.oauth", Kind: remote.ErrInvalid, Msg: "oauth sign-in not supported by this provider"}
	ErrNoSession          = remote.OpError{Op: "identity.user", Kind: remote.ErrNotFound, Msg: "no active session"}
)
