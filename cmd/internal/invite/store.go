package invite

import (
	"context"
	"time"
)

// CreateRecord is a normalized invite insert payload.
type CreateRecord struct {
	ID        string
	WorldID   string
	TokenHash string
	CreatedBy *string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for world invites.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Invite, error)
	// GetByTokenHash returns ErrNotFound when no invite matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error)
	// ListByWorld returns every invite for worldID, newest first.
	ListByWorld(ctx context.Context, worldID string) ([]Invite, error)
	// Revoke marks an invite revoked; revoking twice is a no-op.
	Revoke(ctx context.Context, inviteID string, now time.Time) error
}
