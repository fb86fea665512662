package identity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tavern/cmd/internal/localstore"
)

// User is the identity provider's user record.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// EmailConfirmed reports whether the user confirmed their email address.
func (u User) EmailConfirmed() bool { return u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero() }

// Session is an authenticated credential for one user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// UserID returns the session's user id, or "" for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the access token is expired at now, with skew
// applied early.
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	return !s.ExpiresAt.IsZero() && !now.Add(skew).Before(s.ExpiresAt)
}

// Event names a session change.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// OAuthStart is the first leg of an OAuth sign-in: the caller opens URL and
// later hands the returned code to ExchangeCode.
type OAuthStart struct {
	Provider string
	URL      string
}

// Provider is the identity provider contract.
//
// GetSession returns (nil, nil) when signed out; an error means the
// provider could not be reached. SignUp returns a nil session when email
// confirmation is required.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignInWithOAuth(ctx context.Context, provider string) (OAuthStart, error)
	// ExchangeCode completes an OAuth or email-confirmation callback.
	ExchangeCode(ctx context.Context, code string) (*Session, error)
	SignOut(ctx context.Context) error
	OnSessionChange(fn func(Event, *Session)) (unsubscribe func())
}

// notifier fans session changes out to subscribers.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event, *Session)
}

func (n *notifier) subscribe(fn func(Event, *Session)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(Event, *Session))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

func (n *notifier) emit(ev Event, s *Session) {
	n.mu.Lock()
	fns := make([]func(Event, *Session), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev, s)
	}
}

// sessionCache persists the current session in the encrypted store.
type sessionCache struct {
	kv localstore.KV
}

func (c sessionCache) load(ctx context.Context) *Session {
	raw, ok := c.kv.Get(ctx, localstore.KeySession)
	if !ok {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.AccessToken == "" {
		c.kv.Remove(ctx, localstore.KeySession)
		return nil
	}
	return &s
}

func (c sessionCache) save(ctx context.Context, s *Session) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	c.kv.Set(ctx, localstore.KeySession, string(b))
}

func (c sessionCache) clear(ctx context.Context) {
	c.kv.Remove(ctx, localstore.KeySession)
}
