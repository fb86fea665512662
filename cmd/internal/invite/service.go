package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"tavern/cmd/identity/ids"
	"tavern/cmd/security/token"
)

const (
	defaultTokenBytes = 32
	DefaultTTL        = 7 * 24 * time.Hour
)

// Invite is one world_invites row. The plain token is never stored.
type Invite struct {
	ID        string     `json:"id" db:"id"`
	WorldID   string     `json:"worldId" db:"world_id"`
	CreatedBy *string    `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
}

// ActiveAt reports whether the invite can be redeemed at now.
func (i Invite) ActiveAt(now time.Time) bool {
	return i.RevokedAt == nil && i.ExpiresAt.After(now)
}

// CreateInput describes invite creation.
type CreateInput struct {
	WorldID   string
	CreatedBy *string
	TTL       time.Duration
	Now       time.Time
}

// Service manages invite creation, validation and revocation.
type Service struct {
	store      Store
	tokenBytes int
	digest     token.Digest
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service) error

// WithTokenBytes sets the length of generated invite tokens in bytes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n < 16 {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// WithHMACKey hashes tokens with HMAC-SHA256 under key instead of plain
// SHA-256. An empty key is ignored.
func WithHMACKey(key []byte) Option {
	return func(s *Service) error {
		s.digest = token.NewDigest(key)
		return nil
	}
}

// WithClock injects the time source used when inputs carry no explicit time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return ErrInvalidInput
		}
		s.now = now
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:      store,
		tokenBytes: defaultTokenBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateInvite creates a new invite and returns it plus its plain token.
func (s *Service) CreateInvite(ctx context.Context, in CreateInput) (Invite, string, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, "", err
	}
	worldID := strings.TrimSpace(in.WorldID)
	if worldID == "" {
		return Invite{}, "", ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = s.now()
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	tokenPlain, err := newOpaqueToken(s.tokenBytes)
	if err != nil {
		return Invite{}, "", err
	}
	inviteID, err := ids.NewULID(now)
	if err != nil {
		return Invite{}, "", err
	}

	inv, err := s.store.Create(ctx, CreateRecord{
		ID:        inviteID,
		WorldID:   worldID,
		TokenHash: s.digest.Sum(tokenPlain),
		CreatedBy: trimPtr(in.CreatedBy),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return Invite{}, "", err
	}
	return inv, tokenPlain, nil
}

// ValidateInvite resolves tokenStr to an active invite at now (zero means
// the service clock). Missing, expired and revoked tokens all return
// ErrInvalidInvite; any other error is a store failure.
func (s *Service) ValidateInvite(ctx context.Context, tokenStr string, now time.Time) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Invite{}, ErrInvalidInvite
	}
	if now.IsZero() {
		now = s.now()
	}

	inv, err := s.store.GetByTokenHash(ctx, s.digest.Sum(tokenStr))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Invite{}, ErrInvalidInvite
		}
		return Invite{}, err
	}
	if !inv.ActiveAt(now) {
		return Invite{}, ErrInvalidInvite
	}
	return inv, nil
}

// RevokeInvite revokes an invite by id.
func (s *Service) RevokeInvite(ctx context.Context, inviteID string) error {
	inviteID = strings.TrimSpace(inviteID)
	if !ids.Valid(inviteID) {
		return ErrInvalidInput
	}
	return s.store.Revoke(ctx, inviteID, s.now())
}

// ListInvites returns a world's invites, newest first. Unless all is set,
// only invites still redeemable at the service clock are included.
func (s *Service) ListInvites(ctx context.Context, worldID string, all bool) ([]Invite, error) {
	worldID = strings.TrimSpace(worldID)
	if worldID == "" {
		return nil, ErrInvalidInput
	}
	invs, err := s.store.ListByWorld(ctx, worldID)
	if err != nil || all {
		return invs, err
	}
	now := s.now()
	active := invs[:0]
	for _, inv := range invs {
		if inv.ActiveAt(now) {
			active = append(active, inv)
		}
	}
	return active, nil
}

func newOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = defaultTokenBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
