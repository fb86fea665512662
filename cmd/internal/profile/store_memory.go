package profile

import (
	"context"
	"strings"
	"sync"
	"time"

	"tavern/cmd/identity/ids"
	"tavern/cmd/internal/remote"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byAuth map[string]Profile

	// GetErr, when set, is returned by GetByAuthID.
	GetErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAuth: make(map[string]Profile)}
}

func (s *MemoryStore) GetByAuthID(ctx context.Context, authUserID string) (Profile, error) {
	const op = "profile.GetByAuthID"
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return Profile{}, s.GetErr
	}
	p, ok := s.byAuth[strings.TrimSpace(authUserID)]
	if !ok {
		return Profile{}, notFound(op)
	}
	return p, nil
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Profile, error) {
	const op = "profile.Create"
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	authUserID := strings.TrimSpace(in.AuthUserID)
	if authUserID == "" {
		return Profile{}, remote.Invalid(op, "auth user id is required")
	}
	username, norm, err := usernameColumns(in.Username)
	if err != nil {
		return Profile{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAuth[authUserID]; ok {
		return Profile{}, ConflictError{Op: op, Field: "auth_user_id"}
	}
	if norm != nil && s.usernameTakenLocked(*norm, "") {
		return Profile{}, ConflictError{Op: op, Field: "username"}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{ID: id, AuthUserID: authUserID, CreatedAt: now, UpdatedAt: now}
	if username != nil {
		p.Username = *username
	}
	s.byAuth[authUserID] = p
	return p, nil
}

func (s *MemoryStore) Update(ctx context.Context, authUserID string, in UpdateInput) (Profile, error) {
	const op = "profile.Update"
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	authUserID = strings.TrimSpace(authUserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byAuth[authUserID]
	if !ok {
		return Profile{}, notFound(op)
	}
	if in.Username == nil {
		return p, nil
	}
	username, norm, err := usernameColumns(*in.Username)
	if err != nil {
		return Profile{}, err
	}
	if norm != nil && s.usernameTakenLocked(*norm, authUserID) {
		return Profile{}, ConflictError{Op: op, Field: "username"}
	}

	p.Username = ""
	if username != nil {
		p.Username = *username
	}
	p.UpdatedAt = in.Now
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.byAuth[authUserID] = p
	return p, nil
}

// Put stores p as-is, bypassing validation. Tests use it to build fixtures
// such as blank-username or mismatched profiles.
func (s *MemoryStore) Put(authUserID string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAuth[authUserID] = p
}

func (s *MemoryStore) usernameTakenLocked(norm, exceptAuth string) bool {
	for auth, p := range s.byAuth {
		if auth != exceptAuth && NormalizeUsername(p.Username) == norm {
			return true
		}
	}
	return false
}
