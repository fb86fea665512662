package invite

import "tavern/cmd/internal/remote"

var (
	ErrInvalidInput = remote.OpError{Op: "invite", Kind: remote.ErrInvalid, Msg: "invalid input"}
	ErrNotFound     = remote.OpError{Op: "invite", Kind: remote.ErrNotFound, Msg: "invite not found"}

	// ErrInvalidInvite is returned for missing, expired and revoked tokens alike.
	ErrInvalidInvite = remote.OpError{Op: "invite.validate", Kind: remote.ErrInvalid, Msg: "invalid or expired"}
)
