package authstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tavern/cmd/identity"
	"tavern/cmd/internal/invite"
	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/pendinginvite"
	"tavern/cmd/internal/profile"
	"tavern/cmd/internal/redirect"
	"tavern/cmd/internal/remote"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newKV() *localstore.Store {
	return localstore.NewStore(localstore.NewMemoryBackend(), nil, localstore.WithLogger(discard()))
}

// fakeProvider returns a fixed session and counts GetSession calls.
type fakeProvider struct {
	mu       sync.Mutex
	session  *identity.Session
	err      error
	getCalls int
}

func (f *fakeProvider) GetSession(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return f.session, f.err
}

func (f *fakeProvider) GetUser(context.Context) (*identity.User, error) {
	if f.session == nil {
		return nil, identity.ErrNoSession
	}
	u := f.session.User
	return &u, nil
}

func (f *fakeProvider) SignInWithPassword(context.Context, string, string) (*identity.Session, error) {
	return f.session, f.err
}

func (f *fakeProvider) SignUp(context.Context, string, string) (*identity.Session, error) {
	return f.session, f.err
}

func (f *fakeProvider) SignInWithOAuth(context.Context, string) (identity.OAuthStart, error) {
	return identity.OAuthStart{}, identity.ErrOAuthUnsupported
}

func (f *fakeProvider) ExchangeCode(context.Context, string) (*identity.Session, error) {
	return f.session, f.err
}

func (f *fakeProvider) SignOut(context.Context) error { return nil }

func (f *fakeProvider) OnSessionChange(func(identity.Event, *identity.Session)) func() {
	return func() {}
}

// recordingRedeemer captures redemption calls.
type recordingRedeemer struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *recordingRedeemer) Redeem(_ context.Context, token, worldName string, _ *identity.Session) invite.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{token, worldName})
	return invite.Result{Outcome: invite.OutcomeJoined, WorldName: worldName}
}

func confirmedSession(authID string) *identity.Session {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &identity.Session{AccessToken: "a", User: identity.User{ID: authID, EmailConfirmedAt: &at}}
}

func newFakeManager(t *testing.T, p identity.Provider, profiles profile.Store) (*Manager, localstore.KV) {
	t.Helper()
	kv := newKV()
	m, err := New(Config{
		Store:     kv,
		Provider:  p,
		Profiles:  profiles,
		Redeemer:  &recordingRedeemer{},
		Pending:   pendinginvite.NewCache(kv, pendinginvite.WithLogger(discard())),
		Redirects: redirect.NewGuard(kv, redirect.WithLogger(discard())),
		Logger:    discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, kv
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); !errors.Is(err, remote.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestGetRoutingDecision_Table(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection refused")

	tests := []struct {
		name       string
		hasAccount bool
		session    *identity.Session
		sessionErr error
		setup      func(*profile.MemoryStore)
		want       Routing
	}{
		{name: "fresh install", want: Routing{Decision: DecisionWelcome}},
		{name: "returning signed out", hasAccount: true, want: Routing{Decision: DecisionLogin}},
		{name: "session unavailable with flag", hasAccount: true, sessionErr: transient, want: Routing{Decision: DecisionLogin}},
		{name: "session unavailable without flag", sessionErr: transient, want: Routing{Decision: DecisionWelcome}},
		{name: "no profile", hasAccount: true, session: confirmedSession("auth-1"), want: Routing{Decision: DecisionCompleteProfile}},
		{
			name: "blank username", hasAccount: true, session: confirmedSession("auth-1"),
			setup: func(s *profile.MemoryStore) { s.Put("auth-1", profile.Profile{ID: "p1", AuthUserID: "auth-1"}) },
			want:  Routing{Decision: DecisionCompleteProfile, ProfileID: "p1"},
		},
		{
			name: "mismatched profile", hasAccount: true, session: confirmedSession("auth-1"),
			setup: func(s *profile.MemoryStore) {
				s.Put("auth-1", profile.Profile{ID: "p2", AuthUserID: "auth-2", Username: "other"})
			},
			want: Routing{Decision: DecisionCompleteProfile},
		},
		{
			name: "returning user with complete profile", hasAccount: true, session: confirmedSession("auth-1"),
			setup: func(s *profile.MemoryStore) {
				s.Put("auth-1", profile.Profile{ID: "p1", AuthUserID: "auth-1", Username: "elyra"})
			},
			want: Routing{Decision: DecisionMain, ProfileID: "p1"},
		},
		{
			name: "session without local flag", session: confirmedSession("auth-1"),
			setup: func(s *profile.MemoryStore) {
				s.Put("auth-1", profile.Profile{ID: "p1", AuthUserID: "auth-1", Username: "elyra"})
			},
			want: Routing{Decision: DecisionMain, ProfileID: "p1"},
		},
		{
			name: "profile lookup fails", hasAccount: true, session: confirmedSession("auth-1"),
			setup: func(s *profile.MemoryStore) { s.GetErr = transient },
			want:  Routing{Decision: DecisionMain},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			profiles := profile.NewMemoryStore()
			if tt.setup != nil {
				tt.setup(profiles)
			}
			m, _ := newFakeManager(t, &fakeProvider{session: tt.session, err: tt.sessionErr}, profiles)
			ctx := context.Background()
			m.SetHasAccount(ctx, tt.hasAccount)

			if got := m.GetRoutingDecision(ctx); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsAuthenticated(t *testing.T) {
	t.Parallel()

	unconfirmed := &identity.Session{AccessToken: "a", User: identity.User{ID: "auth-1"}}

	tests := []struct {
		name       string
		hasAccount bool
		session    *identity.Session
		err        error
		want       bool
		wantCalls  int
	}{
		{name: "no flag skips provider", session: confirmedSession("auth-1"), want: false, wantCalls: 0},
		{name: "confirmed session", hasAccount: true, session: confirmedSession("auth-1"), want: true, wantCalls: 1},
		{name: "unconfirmed email", hasAccount: true, session: unconfirmed, want: false, wantCalls: 1},
		{name: "signed out", hasAccount: true, want: false, wantCalls: 1},
		{name: "provider unreachable trusts flag", hasAccount: true, err: errors.New("timeout"), want: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &fakeProvider{session: tt.session, err: tt.err}
			m, _ := newFakeManager(t, p, profile.NewMemoryStore())
			ctx := context.Background()
			m.SetHasAccount(ctx, tt.hasAccount)

			if got := m.IsAuthenticated(ctx); got != tt.want {
				t.Fatalf("IsAuthenticated = %v, want %v", got, tt.want)
			}
			if p.getCalls != tt.wantCalls {
				t.Fatalf("GetSession calls = %d, want %d", p.getCalls, tt.wantCalls)
			}
		})
	}
}

func TestSetHasAccount_ClearAuthState(t *testing.T) {
	t.Parallel()

	m, kv := newFakeManager(t, &fakeProvider{}, profile.NewMemoryStore())
	ctx := context.Background()

	m.SetHasAccount(ctx, true)
	if v, ok := kv.Get(ctx, localstore.KeyHasAccount); !ok || v != "true" {
		t.Fatalf("flag = %q %v", v, ok)
	}
	m.ClearAuthState(ctx)
	if m.HasAccount(ctx) {
		t.Fatalf("flag should be cleared")
	}
}

func TestOpenInvite_LoggedOutSavesPendingThenSignInRedeems(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := &fakeProvider{}
	profiles := profile.NewMemoryStore()
	profiles.Put("auth-1", profile.Profile{ID: "p1", AuthUserID: "auth-1", Username: "elyra"})

	kv := newKV()
	rec := &recordingRedeemer{}
	pending := pendinginvite.NewCache(kv, pendinginvite.WithLogger(discard()))
	m, err := New(Config{
		Store: kv, Provider: p, Profiles: profiles, Redeemer: rec, Pending: pending,
		Redirects: redirect.NewGuard(kv, redirect.WithLogger(discard())), Logger: discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := m.OpenInvite(ctx, "abc", "Waterdeep")
	if out.Routing.Decision != DecisionLogin || !out.InvitePending || out.Redemption != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	inv, ok := pending.Peek(ctx)
	if !ok || inv.Token != "abc" || inv.WorldName != "Waterdeep" {
		t.Fatalf("pending = %+v %v", inv, ok)
	}

	p.session = confirmedSession("auth-1")
	out, err = m.SignInWithPassword(ctx, "elyra@example.com", "pw")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if out.Routing.Decision != DecisionMain {
		t.Fatalf("decision = %q", out.Routing.Decision)
	}
	if out.Redemption == nil || out.Redemption.Outcome != invite.OutcomeJoined {
		t.Fatalf("redemption = %+v", out.Redemption)
	}
	if len(rec.calls) != 1 || rec.calls[0] != [2]string{"abc", "Waterdeep"} {
		t.Fatalf("redeem calls = %v", rec.calls)
	}
	if _, ok := pending.Peek(ctx); ok {
		t.Fatalf("pending invite should be consumed")
	}
	if !m.HasAccount(ctx) {
		t.Fatalf("sign in should set the account flag")
	}
}

func TestOpenInvite_MissingInput(t *testing.T) {
	t.Parallel()

	m, kv := newFakeManager(t, &fakeProvider{}, profile.NewMemoryStore())
	ctx := context.Background()

	out := m.OpenInvite(ctx, "  ", "Waterdeep")
	if out.Redemption == nil || out.Redemption.Reason != invite.ReasonMissingInput {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, ok := kv.Get(ctx, localstore.KeyPendingInvite); ok {
		t.Fatalf("nothing should be saved")
	}
}

func TestNavigateTo_GuardsLoops(t *testing.T) {
	t.Parallel()

	m, _ := newFakeManager(t, &fakeProvider{}, profile.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !m.NavigateTo(ctx, DecisionLogin) {
			t.Fatalf("attempt %d refused", i+1)
		}
	}
	if m.NavigateTo(ctx, DecisionLogin) {
		t.Fatalf("third attempt should be refused")
	}
	m.MarkStable(ctx)
	if !m.NavigateTo(ctx, DecisionLogin) {
		t.Fatalf("attempt after MarkStable refused")
	}

	m.NavigateTo(ctx, DecisionLogin)
	m.NavigateTo(ctx, DecisionLogin)
	m.ForceAllowRedirects(ctx)
	if !m.NavigateTo(ctx, DecisionLogin) {
		t.Fatalf("attempt after ForceAllowRedirects refused")
	}
}
