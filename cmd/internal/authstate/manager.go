// Package authstate is the session reconciliation engine: it combines the
// local account flag, the remote session, the remote profile and any
// pending invite into a routing decision.
//
// Read paths never fail. Remote errors degrade to the most permissive safe
// default and are logged.
package authstate

import (
	"context"
	"log/slog"
	"strings"

	"tavern/cmd/identity"
	"tavern/cmd/internal/invite"
	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/metrics"
	"tavern/cmd/internal/pendinginvite"
	"tavern/cmd/internal/profile"
	"tavern/cmd/internal/redirect"
	"tavern/cmd/internal/remote"
)

// Redeemer performs invite redemption. *invite.Redeemer implements it.
type Redeemer interface {
	Redeem(ctx context.Context, token, worldName string, s *identity.Session) invite.Result
}

// Config wires a Manager. All fields except Logger and Metrics are required.
type Config struct {
	Store     localstore.KV
	Provider  identity.Provider
	Profiles  profile.Store
	Redeemer  Redeemer
	Pending   *pendinginvite.Cache
	Redirects *redirect.Guard
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Manager is safe for concurrent use; it holds no state of its own beyond
// what lives in the local store.
type Manager struct {
	kv        localstore.KV
	provider  identity.Provider
	profiles  profile.Store
	redeemer  Redeemer
	pending   *pendinginvite.Cache
	redirects *redirect.Guard
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Provider == nil || cfg.Profiles == nil ||
		cfg.Redeemer == nil || cfg.Pending == nil || cfg.Redirects == nil {
		return nil, ErrMissingField
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		kv:        cfg.Store,
		provider:  cfg.Provider,
		profiles:  cfg.Profiles,
		redeemer:  cfg.Redeemer,
		pending:   cfg.Pending,
		redirects: cfg.Redirects,
		log:       log,
		metrics:   cfg.Metrics,
	}, nil
}

// SetHasAccount records whether this device has signed in before.
func (m *Manager) SetHasAccount(ctx context.Context, v bool) {
	if v {
		m.kv.Set(ctx, localstore.KeyHasAccount, "true")
		return
	}
	m.kv.Remove(ctx, localstore.KeyHasAccount)
}

// HasAccount reads the local flag. Unreadable means false.
func (m *Manager) HasAccount(ctx context.Context) bool {
	v, ok := m.kv.Get(ctx, localstore.KeyHasAccount)
	return ok && v == "true"
}

// ClearAuthState clears the local flag.
func (m *Manager) ClearAuthState(ctx context.Context) {
	m.kv.Remove(ctx, localstore.KeyHasAccount)
}

// IsAuthenticated is the cheap route-guard check. Without the local flag it
// never calls the provider. If the provider cannot be reached it trusts the
// flag.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	if !m.HasAccount(ctx) {
		return false
	}
	res := remote.Call(ctx, m.provider.GetSession)
	if !res.OK() {
		m.log.Warn("authstate.session.unavailable", "err", res.Err)
		return true
	}
	s := res.Value
	return s != nil && s.User.EmailConfirmed()
}

// GetRoutingDecision always returns a decision. It has no side effects
// beyond reads (and whatever token refresh the provider performs).
func (m *Manager) GetRoutingDecision(ctx context.Context) Routing {
	r := m.route(ctx)
	m.metrics.RoutingDecision(string(r.Decision))
	return r
}

func (m *Manager) route(ctx context.Context) Routing {
	hasAccount := m.HasAccount(ctx)

	sres := remote.Call(ctx, m.provider.GetSession)
	if !sres.OK() {
		m.log.Warn("authstate.session.unavailable", "err", sres.Err)
		return signedOutDecision(hasAccount)
	}
	s := sres.Value
	if s == nil || s.UserID() == "" {
		return signedOutDecision(hasAccount)
	}

	return m.routeSession(ctx, s)
}

func (m *Manager) routeSession(ctx context.Context, s *identity.Session) Routing {
	authID := s.UserID()
	pres := remote.Call(ctx, func(ctx context.Context) (profile.Profile, error) {
		return m.profiles.GetByAuthID(ctx, authID)
	})

	var state profileState
	switch pres.Kind {
	case remote.KindOK:
		state = classifyProfile(authID, pres.Value)
	case remote.KindNotFound:
		state = profileMissing
	default:
		m.log.Warn("authstate.profile.unavailable", "err", pres.Err)
		state = profileUnavailable
	}
	return sessionDecision(state, pres.Value)
}

// Outcome is returned by every flow that ends on a screen.
type Outcome struct {
	Routing Routing `json:"routing"`

	// Redemption is set when a pending or opened invite was handed to the
	// redemption service.
	Redemption *invite.Result `json:"redemption,omitempty"`

	// InvitePending reports that an invite was saved for after sign-in.
	InvitePending bool `json:"invitePending,omitempty"`

	// ConfirmationRequired reports a sign-up awaiting email confirmation.
	ConfirmationRequired bool `json:"confirmationRequired,omitempty"`
}

// CompleteSignIn runs the post-authentication step. A pending invite takes
// priority over the default destination once the user has a usable profile;
// with no profile yet it stays pending until CompleteProfile.
func (m *Manager) CompleteSignIn(ctx context.Context, s *identity.Session) Outcome {
	if s == nil {
		return Outcome{Routing: m.GetRoutingDecision(ctx)}
	}
	m.SetHasAccount(ctx, true)

	r := m.routeSession(ctx, s)
	out := Outcome{Routing: r}

	inv, ok := m.pending.Peek(ctx)
	if !ok {
		m.metrics.RoutingDecision(string(r.Decision))
		return out
	}
	if r.Decision == DecisionCompleteProfile {
		out.InvitePending = true
		m.metrics.RoutingDecision(string(r.Decision))
		return out
	}

	// Consumed whether or not redemption succeeds.
	m.pending.Clear(ctx)
	res := m.redeemer.Redeem(ctx, inv.Token, inv.WorldName, s)
	out.Redemption = &res
	m.metrics.RoutingDecision(string(r.Decision))
	return out
}

// SignInWithPassword authenticates and runs CompleteSignIn.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (Outcome, error) {
	s, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return Outcome{}, err
	}
	return m.CompleteSignIn(ctx, s), nil
}

// SignUp registers an account. When the provider requires email
// confirmation the outcome routes to login with ConfirmationRequired set.
func (m *Manager) SignUp(ctx context.Context, email, password string) (Outcome, error) {
	s, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		return Outcome{}, err
	}
	if s == nil {
		m.SetHasAccount(ctx, true)
		_, pending := m.pending.Peek(ctx)
		return Outcome{
			Routing:              Routing{Decision: DecisionLogin},
			ConfirmationRequired: true,
			InvitePending:        pending,
		}, nil
	}
	return m.CompleteSignIn(ctx, s), nil
}

// StartOAuth begins a social sign-in.
func (m *Manager) StartOAuth(ctx context.Context, provider string) (identity.OAuthStart, error) {
	return m.provider.SignInWithOAuth(ctx, provider)
}

// CompleteCallback finishes an OAuth or email-confirmation redirect.
func (m *Manager) CompleteCallback(ctx context.Context, code string) (Outcome, error) {
	s, err := m.provider.ExchangeCode(ctx, code)
	if err != nil {
		return Outcome{}, err
	}
	return m.CompleteSignIn(ctx, s), nil
}

// OpenInvite handles an invite link. Signed-in users with a profile redeem
// immediately; everyone else has the invite saved and is sent to sign in
// (or to finish their profile).
func (m *Manager) OpenInvite(ctx context.Context, token, worldName string) Outcome {
	token = strings.TrimSpace(token)
	worldName = strings.TrimSpace(worldName)
	if token == "" || worldName == "" {
		res := invite.Result{Outcome: invite.OutcomeFailed, Reason: invite.ReasonMissingInput, WorldName: worldName}
		return Outcome{Routing: m.GetRoutingDecision(ctx), Redemption: &res}
	}

	var s *identity.Session
	if m.IsAuthenticated(ctx) {
		if res := remote.Call(ctx, m.provider.GetSession); res.OK() {
			s = res.Value
		}
	}
	if s == nil {
		m.pending.Save(ctx, token, worldName)
		m.metrics.RoutingDecision(string(DecisionLogin))
		return Outcome{Routing: Routing{Decision: DecisionLogin}, InvitePending: true}
	}

	r := m.routeSession(ctx, s)
	if r.Decision == DecisionCompleteProfile {
		m.pending.Save(ctx, token, worldName)
		m.metrics.RoutingDecision(string(r.Decision))
		return Outcome{Routing: r, InvitePending: true}
	}

	res := m.redeemer.Redeem(ctx, token, worldName, s)
	m.metrics.RoutingDecision(string(r.Decision))
	return Outcome{Routing: r, Redemption: &res}
}

// CompleteProfile sets the caller's username, creating the profile if
// needed, then hands any pending invite to redemption.
func (m *Manager) CompleteProfile(ctx context.Context, username string) (Outcome, error) {
	s, err := m.provider.GetSession(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if s == nil {
		return Outcome{}, ErrNotSignedIn
	}
	name, err := profile.ValidateUsername(username)
	if err != nil {
		return Outcome{}, err
	}

	authID := s.UserID()
	_, err = m.profiles.GetByAuthID(ctx, authID)
	switch remote.Classify(err) {
	case remote.KindOK:
		_, err = m.profiles.Update(ctx, authID, profile.UpdateInput{Username: &name})
	case remote.KindNotFound:
		_, err = m.profiles.Create(ctx, profile.CreateInput{AuthUserID: authID, Username: name})
	}
	if err != nil {
		return Outcome{}, err
	}
	m.log.Info("authstate.profile.completed", "auth_user_id", authID)

	return m.CompleteSignIn(ctx, s), nil
}

// SignOut ends the remote session and clears device auth state.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx)
	m.ClearAuthState(ctx)
	m.redirects.Clear(ctx)
	if err != nil {
		m.log.Warn("authstate.signout.remote_fail", "err", err)
	}
	return err
}

// DeleteAccountLocalState wipes every engine-owned key after an account
// deletion.
func (m *Manager) DeleteAccountLocalState(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn("authstate.signout.remote_fail", "err", err)
	}
	for _, k := range []string{
		localstore.KeyHasAccount,
		localstore.KeySession,
		localstore.KeyPKCEVerifier,
		localstore.KeyRedirectAttempt,
		localstore.KeyPendingInvite,
	} {
		m.kv.Remove(ctx, k)
	}
}

// Watch mirrors provider session events into the local flag until the
// returned stop function is called.
func (m *Manager) Watch(ctx context.Context) (stop func()) {
	return m.provider.OnSessionChange(func(ev identity.Event, s *identity.Session) {
		switch ev {
		case identity.EventSignedIn, identity.EventTokenRefreshed:
			if s != nil {
				m.SetHasAccount(ctx, true)
			}
		}
		m.log.Debug("authstate.session.event", "event", string(ev))
	})
}

// NavigateTo reports whether the UI may redirect to route. On false the
// caller must render a terminal screen instead of retrying.
func (m *Manager) NavigateTo(ctx context.Context, route Decision) bool {
	return m.redirects.IsSafeToRedirect(ctx, string(route))
}

// MarkStable is called once a non-redirecting screen is reached.
func (m *Manager) MarkStable(ctx context.Context) {
	m.redirects.Clear(ctx)
}

// ForceAllowRedirects is the recovery escape hatch for a tripped guard.
func (m *Manager) ForceAllowRedirects(ctx context.Context) {
	m.redirects.ForceAllow(ctx)
}
