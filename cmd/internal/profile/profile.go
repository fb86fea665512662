// Package profile stores the application-level user record linked to an
// identity-provider user.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tavern/cmd/internal/remote"
)

// Profile is one profiles row.
type Profile struct {
	ID         string
	AuthUserID string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Complete reports whether the profile has a non-blank username.
func (p Profile) Complete() bool { return strings.TrimSpace(p.Username) != "" }

// CreateInput creates a profile. Username may be empty (incomplete profile).
type CreateInput struct {
	AuthUserID string
	Username   string
	Now        time.Time
}

// UpdateInput lists mutable fields; nil means unchanged.
type UpdateInput struct {
	Username *string
	Now      time.Time
}

// Store is the persistence boundary for profiles.
// GetByAuthID returns an error matching remote.ErrNotFound when no row exists.
type Store interface {
	GetByAuthID(ctx context.Context, authUserID string) (Profile, error)
	Create(ctx context.Context, in CreateInput) (Profile, error)
	Update(ctx context.Context, authUserID string, in UpdateInput) (Profile, error)
}

// ConflictError reports a uniqueness conflict on a logical field
// ("username", "auth_user_id").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, remote.ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, remote.ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return remote.ErrConflict }

func notFound(op string) error { return remote.NotFound(op, "profile not found") }
