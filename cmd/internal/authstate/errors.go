package authstate

import "tavern/cmd/internal/remote"

var (
	ErrNotSignedIn  = remote.OpError{Op: "authstate", Kind: remote.ErrInvalid, Msg: "sign in required"}
	ErrMissingField = remote.OpError{Op: "authstate", Kind: remote.ErrInvalid, Msg: "missing required dependency"}
)
