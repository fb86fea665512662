package membership

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memberKey struct{ world, user string }

// MemoryStore is an in-memory Store with the same uniqueness guarantee as
// the Postgres table.
type MemoryStore struct {
	mu      sync.Mutex
	members map[memberKey]Membership
	now     func() time.Time

	// Hooks let tests inject failures.
	IsMemberErr  error
	AddMemberErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[memberKey]Membership), now: time.Now}
}

func (s *MemoryStore) IsMember(ctx context.Context, worldID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsMemberErr != nil {
		return false, s.IsMemberErr
	}
	_, ok := s.members[memberKey{strings.TrimSpace(worldID), strings.TrimSpace(userID)}]
	return ok, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, worldID, userID string, role Role) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}
	worldID = strings.TrimSpace(worldID)
	userID = strings.TrimSpace(userID)
	if worldID == "" || userID == "" || !role.Valid() {
		return Membership{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddMemberErr != nil {
		return Membership{}, s.AddMemberErr
	}
	k := memberKey{worldID, userID}
	if _, ok := s.members[k]; ok {
		return Membership{}, ErrAlreadyMember
	}
	m := Membership{WorldID: worldID, UserID: userID, Role: role, JoinedAt: s.now().UTC()}
	s.members[k] = m
	return m, nil
}

// Members returns the members of worldID.
func (s *MemoryStore) Members(worldID string) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Membership
	for k, m := range s.members {
		if k.world == worldID {
			out = append(out, m)
		}
	}
	return out
}
