package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/remote"
	"tavern/cmd/security/password"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newKV() *localstore.Store {
	return localstore.NewStore(localstore.NewMemoryBackend(), nil,
		localstore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func newLocal(t *testing.T, kv localstore.KV, confirm bool) (*LocalProvider, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultLocalConfig()
	cfg.Password = password.TestConfig()
	cfg.RequireEmailConfirmation = confirm
	p, err := NewLocalProvider(context.Background(), kv, cfg,
		WithLocalClock(clock.Now),
		WithLocalLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	return p, clock
}

func TestLocalProvider_SignUpSignInSignOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newLocal(t, newKV(), false)

	var events []Event
	unsubscribe := p.OnSessionChange(func(ev Event, _ *Session) { events = append(events, ev) })
	defer unsubscribe()

	s, err := p.SignUp(ctx, "Elyra@Example.com", "moonlit-harp-42")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s == nil || s.UserID() == "" || !s.User.EmailConfirmed() {
		t.Fatalf("expected confirmed session, got %+v", s)
	}
	if s.User.Email != "elyra@example.com" {
		t.Fatalf("email = %q, want normalized", s.User.Email)
	}

	got, err := p.GetSession(ctx)
	if err != nil || got == nil || got.UserID() != s.UserID() {
		t.Fatalf("GetSession() = %+v, %v", got, err)
	}

	if _, err := p.SignUp(ctx, "elyra@example.com", "another-pass-99"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate SignUp err = %v", err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if got, _ := p.GetSession(ctx); got != nil {
		t.Fatalf("expected no session after sign out")
	}

	if _, err := p.SignInWithPassword(ctx, "elyra@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := p.SignInWithPassword(ctx, "nobody@example.com", "moonlit-harp-42"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
	s2, err := p.SignInWithPassword(ctx, "ELYRA@example.com", "moonlit-harp-42")
	if err != nil || s2.UserID() != s.UserID() {
		t.Fatalf("SignInWithPassword() = %+v, %v", s2, err)
	}

	want := []Event{EventSignedIn, EventSignedOut, EventSignedIn}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestLocalProvider_RefreshesExpiredAccessToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, clock := newLocal(t, newKV(), false)

	s, err := p.SignUp(ctx, "rin@example.com", "lantern-keeper-7")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	var refreshed bool
	p.OnSessionChange(func(ev Event, _ *Session) { refreshed = refreshed || ev == EventTokenRefreshed })

	clock.Advance(time.Hour)
	got, err := p.GetSession(ctx)
	if err != nil || got == nil {
		t.Fatalf("GetSession() after expiry = %+v, %v", got, err)
	}
	if got.AccessToken == s.AccessToken || got.RefreshToken == s.RefreshToken {
		t.Fatalf("expected rotated tokens")
	}
	if !refreshed {
		t.Fatalf("expected TOKEN_REFRESHED event")
	}
}

func TestLocalProvider_SharedAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newKV()
	p1, _ := newLocal(t, kv, false)
	s, err := p1.SignUp(ctx, "tam@example.com", "copper-kettle-3")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	p2, _ := newLocal(t, kv, false)
	got, err := p2.GetSession(ctx)
	if err != nil || got == nil || got.UserID() != s.UserID() {
		t.Fatalf("second instance GetSession() = %+v, %v", got, err)
	}
}

func TestLocalProvider_SignInUpgradesStaleHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newKV()
	p1, _ := newLocal(t, kv, false)
	if _, err := p1.SignUp(ctx, "tam@example.com", "copper-kettle-3"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	before := p1.accountsLocked(ctx)["tam@example.com"].PasswordHash

	cfg := DefaultLocalConfig()
	cfg.Password = password.TestConfig()
	cfg.Password.Params.Iterations = 2
	p2, err := NewLocalProvider(ctx, kv, cfg,
		WithLocalLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	if _, err := p2.SignInWithPassword(ctx, "tam@example.com", "copper-kettle-3"); err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}

	after := p2.accountsLocked(ctx)["tam@example.com"].PasswordHash
	if after == before || cfg.Password.NeedsRehash(after) {
		t.Fatalf("hash was not upgraded: before=%q after=%q", before, after)
	}
	if _, err := p2.SignInWithPassword(ctx, "tam@example.com", "copper-kettle-3"); err != nil {
		t.Fatalf("sign-in with upgraded hash: %v", err)
	}
}

func TestLocalProvider_EmailConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newLocal(t, newKV(), true)

	s, err := p.SignUp(ctx, "ash@example.com", "ember-and-oak-5")
	if err != nil || s != nil {
		t.Fatalf("SignUp() = %+v, %v; want nil session pending confirmation", s, err)
	}
	if _, err := p.SignInWithPassword(ctx, "ash@example.com", "ember-and-oak-5"); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("sign in before confirmation err = %v", err)
	}

	if _, err := p.ExchangeCode(ctx, "bogus"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("bogus code err = %v", err)
	}

	code, ok := p.ConfirmationCode("ash@example.com")
	if !ok {
		t.Fatalf("expected pending confirmation code")
	}
	s, err = p.ExchangeCode(ctx, code)
	if err != nil || s == nil || !s.User.EmailConfirmed() {
		t.Fatalf("ExchangeCode() = %+v, %v", s, err)
	}
	if _, err := p.ExchangeCode(ctx, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("reused code err = %v", err)
	}
}

func TestLocalProvider_RejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newLocal(t, newKV(), false)

	cases := []struct{ email, pw string }{
		{"", "moonlit-harp-42"},
		{"not-an-email", "moonlit-harp-42"},
		{"ok@example.com", ""},
		{"ok@example.com", "short"},
		{"rinwyn@example.com", "rinwyn-the-bold"},
	}
	for _, tc := range cases {
		if _, err := p.SignUp(ctx, tc.email, tc.pw); remote.Classify(err) != remote.KindInvalid {
			t.Fatalf("SignUp(%q, %q) err = %v, want invalid", tc.email, tc.pw, err)
		}
	}
	if _, err := p.SignInWithOAuth(ctx, "discord"); !errors.Is(err, ErrOAuthUnsupported) {
		t.Fatalf("SignInWithOAuth err = %v", err)
	}
}

func TestLocalProvider_CorruptSessionIsSignedOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newKV()
	p, _ := newLocal(t, kv, false)

	kv.Set(ctx, localstore.KeySession, `{"access_token":"v4.public.garbage","user":{"id":"x","email":"x@example.com"}}`)
	if s, err := p.GetSession(ctx); err != nil || s != nil {
		t.Fatalf("GetSession() = %+v, %v; want nil, nil", s, err)
	}
	if _, ok := kv.Get(ctx, localstore.KeySession); ok {
		t.Fatalf("corrupt session should be cleared")
	}
}
