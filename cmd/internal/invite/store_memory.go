package invite

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Invite
	hashOf map[string]string // invite id -> token hash

	// GetErr, when set, is returned by GetByTokenHash.
	GetErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]Invite), hashOf: make(map[string]string)}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.WorldID) == "" || strings.TrimSpace(in.TokenHash) == "" {
		return Invite{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[in.TokenHash]; ok {
		return Invite{}, ErrInvalidInput
	}
	inv := Invite{
		ID:        in.ID,
		WorldID:   in.WorldID,
		CreatedBy: in.CreatedBy,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	s.byHash[in.TokenHash] = inv
	s.hashOf[in.ID] = in.TokenHash
	return inv, nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return Invite{}, s.GetErr
	}
	inv, ok := s.byHash[tokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) ListByWorld(ctx context.Context, worldID string) ([]Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Invite
	for _, inv := range s.byHash {
		if inv.WorldID == worldID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, inviteID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashOf[inviteID]
	if !ok {
		return ErrNotFound
	}
	inv := s.byHash[h]
	if inv.RevokedAt == nil {
		t := now
		inv.RevokedAt = &t
		s.byHash[h] = inv
	}
	return nil
}
