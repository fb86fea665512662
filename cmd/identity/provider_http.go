package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/remote"
)

// HTTPConfig points HTTPProvider at a GoTrue-compatible auth service.
type HTTPConfig struct {
	// BaseURL is the auth root, e.g. https://project.example.com/auth/v1.
	BaseURL     string
	APIKey      string
	RedirectURL string
	Timeout     time.Duration
	// RefreshSkew refreshes access tokens this long before they expire.
	RefreshSkew time.Duration
}

// HTTPProvider talks to a hosted auth service over REST.
type HTTPProvider struct {
	client   *resty.Client
	cfg      HTTPConfig
	kv       localstore.KV
	sessions sessionCache
	notify   notifier
	now      func() time.Time
	log      *slog.Logger

	// refreshMu serializes refreshes; a refresh token is single-use.
	refreshMu sync.Mutex
}

type HTTPOption func(*HTTPProvider)

func WithHTTPClock(now func() time.Time) HTTPOption {
	return func(p *HTTPProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithHTTPLogger(log *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if log != nil {
			p.log = log
		}
	}
}

func NewHTTPProvider(cfg HTTPConfig, kv localstore.KV, opts ...HTTPOption) (*HTTPProvider, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, remote.Invalid("identity.NewHTTPProvider", "base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey)
	}

	p := &HTTPProvider{
		client:   client,
		cfg:      cfg,
		kv:       kv,
		sessions: sessionCache{kv: kv},
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// tokenResponse is the auth service's session payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`

	// Signup without auto-confirm returns the bare user.
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type apiError struct {
	Code        int    `json:"code"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// emailTakenCodes are the signup error codes meaning the address is registered.
var emailTakenCodes = map[string]bool{
	"user_already_exists": true,
	"email_exists":        true,
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.Description, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p *HTTPProvider) OnSessionChange(fn func(Event, *Session)) func() {
	return p.notify.subscribe(fn)
}

// GetSession returns the cached session, refreshing it when the access token
// is about to expire. A rejected refresh signs the user out locally; a
// transport failure is returned as an error.
func (p *HTTPProvider) GetSession(ctx context.Context) (*Session, error) {
	s := p.sessions.load(ctx)
	if s == nil {
		return nil, nil
	}
	if !s.Expired(p.now(), p.cfg.RefreshSkew) {
		return s, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if cur := p.sessions.load(ctx); cur != nil && !cur.Expired(p.now(), p.cfg.RefreshSkew) {
		return cur, nil
	}

	next, err := p.grant(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		if remote.Classify(err) == remote.KindTransient {
			return nil, err
		}
		p.log.Info("identity.http.refresh.rejected", "err", err)
		p.sessions.clear(ctx)
		p.notify.emit(EventSignedOut, nil)
		return nil, nil
	}
	p.sessions.save(ctx, next)
	p.notify.emit(EventTokenRefreshed, next)
	return next, nil
}

func (p *HTTPProvider) GetUser(ctx context.Context) (*User, error) {
	s, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	var u User
	var apiErr apiError
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(s.AccessToken).
		SetResult(&u).
		SetError(&apiErr).
		Get("/user")
	if err := p.check("identity.http.GetUser", resp, err, apiErr); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	email, err := validateCredentials("identity.http.SignInWithPassword", email, password)
	if err != nil {
		return nil, err
	}
	s, err := p.grant(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		if errors.Is(err, remote.ErrInvalid) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	p.sessions.save(ctx, s)
	p.notify.emit(EventSignedIn, s)
	return s, nil
}

func (p *HTTPProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	const op = "identity.http.SignUp"

	email, err := validateCredentials(op, email, password)
	if err != nil {
		return nil, err
	}

	var out tokenResponse
	var apiErr apiError
	req := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&apiErr)
	if p.cfg.RedirectURL != "" {
		req.SetQueryParam("redirect_to", p.cfg.RedirectURL)
	}
	resp, err := req.Post("/signup")
	if err := p.check(op, resp, err, apiErr); err != nil {
		if errors.Is(err, remote.ErrConflict) || emailTakenCodes[apiErr.ErrorCode] {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if out.AccessToken == "" {
		p.log.Info("identity.http.signup.confirmation_required")
		return nil, nil
	}
	s := p.toSession(out)
	p.sessions.save(ctx, s)
	p.notify.emit(EventSignedIn, s)
	return s, nil
}

// SignInWithOAuth starts a PKCE authorization-code flow. The verifier is kept
// in the encrypted store until ExchangeCode consumes it.
func (p *HTTPProvider) SignInWithOAuth(ctx context.Context, provider string) (OAuthStart, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return OAuthStart{}, remote.Invalid("identity.http.SignInWithOAuth", "provider is required")
	}

	verifier := oauth2.GenerateVerifier()
	p.kv.Set(ctx, localstore.KeyPKCEVerifier, verifier)

	conf := oauth2.Config{
		Endpoint:    oauth2.Endpoint{AuthURL: p.cfg.BaseURL + "/authorize"},
		RedirectURL: p.cfg.RedirectURL,
	}
	url := conf.AuthCodeURL("",
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("provider", provider),
	)
	return OAuthStart{Provider: provider, URL: url}, nil
}

// ExchangeCode swaps an authorization code for a session using the stored
// PKCE verifier.
func (p *HTTPProvider) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	verifier, ok := p.kv.Get(ctx, localstore.KeyPKCEVerifier)
	if !ok {
		return nil, ErrInvalidCode
	}

	s, err := p.grant(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
	if err != nil {
		if errors.Is(err, remote.ErrInvalid) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	p.kv.Remove(ctx, localstore.KeyPKCEVerifier)
	p.sessions.save(ctx, s)
	p.notify.emit(EventSignedIn, s)
	return s, nil
}

// SignOut revokes the session remotely (best effort) and always clears it locally.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	if s := p.sessions.load(ctx); s != nil {
		var apiErr apiError
		resp, err := p.client.R().
			SetContext(ctx).
			SetAuthToken(s.AccessToken).
			SetError(&apiErr).
			Post("/logout")
		if err := p.check("identity.http.SignOut", resp, err, apiErr); err != nil {
			p.log.Warn("identity.http.logout.fail", "err", err)
		}
	}
	p.sessions.clear(ctx)
	p.kv.Remove(ctx, localstore.KeyPKCEVerifier)
	p.notify.emit(EventSignedOut, nil)
	return nil
}

func (p *HTTPProvider) grant(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	op := "identity.http.token." + grantType

	var out tokenResponse
	var apiErr apiError
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", grantType).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/token")
	if err := p.check(op, resp, err, apiErr); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%s: empty access token", op)
	}
	return p.toSession(out), nil
}

func (p *HTTPProvider) toSession(t tokenResponse) *Session {
	s := &Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = p.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.User != nil {
		s.User = *t.User
	} else {
		s.User = User{ID: t.ID, Email: t.Email, EmailConfirmedAt: t.EmailConfirmedAt}
	}
	return s
}

// check maps transport and HTTP failures onto remote kinds. 5xx and
// transport errors stay unwrapped (transient).
func (p *HTTPProvider) check(op string, resp *resty.Response, err error, apiErr apiError) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.text()
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return remote.NotFound(op, msg)
	case code == http.StatusConflict:
		return remote.Conflict(op, msg)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%s: status %d: %s", op, code, msg)
	default:
		return remote.Invalid(op, msg)
	}
}
