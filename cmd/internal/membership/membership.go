// Package membership owns world-membership rows. Uniqueness of
// (world, user) is enforced by the store and is the serialization point for
// concurrent invite redemptions.
package membership

import (
	"context"
	"errors"
	"time"

	"tavern/cmd/internal/remote"
)

// Role is a member's role within a world.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleDM     Role = "dm"
	RolePlayer Role = "player"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleDM, RolePlayer:
		return true
	}
	return false
}

var (
	ErrInvalidInput = remote.OpError{Op: "membership", Kind: remote.ErrInvalid, Msg: "invalid input"}

	// ErrAlreadyMember is returned by AddMember when (world, user) already exists.
	ErrAlreadyMember = remote.OpError{Op: "membership.add", Kind: remote.ErrConflict, Msg: "already a member"}
)

// Membership is one world_members row.
type Membership struct {
	WorldID  string
	UserID   string
	Role     Role
	JoinedAt time.Time
}

// Store is the persistence boundary for memberships.
type Store interface {
	IsMember(ctx context.Context, worldID, userID string) (bool, error)
	// AddMember inserts a row and must return an error matching
	// ErrAlreadyMember on uniqueness violations.
	AddMember(ctx context.Context, worldID, userID string, role Role) (Membership, error)
}

// IsAlreadyMember reports whether err is a uniqueness violation from AddMember.
func IsAlreadyMember(err error) bool {
	return errors.Is(err, ErrAlreadyMember) || errors.Is(err, remote.ErrConflict)
}
