package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tavern/cmd/identity/ids"
	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/remote"
	"tavern/cmd/security/password"
	"tavern/cmd/security/token"
)

const (
	keyLocalAccounts   = "identity.local.accounts"
	keyLocalSigningKey = "identity.local.signing_key"
)

// LocalConfig tunes the embedded provider.
type LocalConfig struct {
	Issuer                   string
	AccessTokenTTL           time.Duration
	ClockSkew                time.Duration
	RequireEmailConfirmation bool
	Password                 password.Config
}

// DefaultLocalConfig returns development defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Issuer:         "tavern-local",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
		Password:       password.DefaultConfig(),
	}
}

type localAccount struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password_hash"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	ConfirmCodeHash  string     `json:"confirm_code_hash,omitempty"`
	RefreshHash      string     `json:"refresh_hash,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (a localAccount) user() User {
	return User{ID: a.ID, Email: a.Email, EmailConfirmedAt: a.EmailConfirmedAt, CreatedAt: a.CreatedAt}
}

// LocalProvider is an embedded identity provider. Accounts, the signing key
// and the current session live in the encrypted local store, so separate
// processes on one device share them.
type LocalProvider struct {
	mu       sync.Mutex
	kv       localstore.KV
	cfg      LocalConfig
	signer   *tokenSigner
	sessions sessionCache
	notify   notifier
	codes    codeBook
	now      func() time.Time
	log      *slog.Logger
}

type LocalOption func(*LocalProvider)

func WithLocalClock(now func() time.Time) LocalOption {
	return func(p *LocalProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLocalLogger(log *slog.Logger) LocalOption {
	return func(p *LocalProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewLocalProvider loads (or creates) the signing key from kv.
func NewLocalProvider(ctx context.Context, kv localstore.KV, cfg LocalConfig, opts ...LocalOption) (*LocalProvider, error) {
	def := DefaultLocalConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = def.AccessTokenTTL
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.Password.Zero() {
		cfg.Password = def.Password
	}

	p := &LocalProvider{
		kv:       kv,
		cfg:      cfg,
		sessions: sessionCache{kv: kv},
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	keyHex, _ := kv.Get(ctx, keyLocalSigningKey)
	signer, err := newTokenSigner(cfg.Issuer, keyHex, cfg.AccessTokenTTL, cfg.ClockSkew)
	if err != nil {
		p.log.Warn("identity.local.signing_key.invalid", "err", err)
		signer, err = newTokenSigner(cfg.Issuer, "", cfg.AccessTokenTTL, cfg.ClockSkew)
		if err != nil {
			return nil, err
		}
	}
	if keyHex != signer.secretHex() {
		kv.Set(ctx, keyLocalSigningKey, signer.secretHex())
	}
	p.signer = signer
	return p, nil
}

func (p *LocalProvider) OnSessionChange(fn func(Event, *Session)) func() {
	return p.notify.subscribe(fn)
}

// GetSession returns the stored session, refreshing an expired access token
// while the refresh token still matches the account.
func (p *LocalProvider) GetSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	s, refreshed := p.currentLocked(ctx)
	p.mu.Unlock()

	if refreshed {
		p.notify.emit(EventTokenRefreshed, s)
	}
	return s, nil
}

func (p *LocalProvider) currentLocked(ctx context.Context) (*Session, bool) {
	s := p.sessions.load(ctx)
	if s == nil {
		return nil, false
	}
	now := p.now()

	acct, ok := p.accountsLocked(ctx)[NormalizeEmail(s.User.Email)]
	if !ok || acct.ID != s.User.ID {
		p.sessions.clear(ctx)
		return nil, false
	}

	if claims, err := p.signer.verify(s.AccessToken, now); err == nil && claims.UserID == acct.ID {
		s.User = acct.user()
		return s, false
	}

	if !token.Equal(s.RefreshToken, acct.RefreshHash) {
		p.sessions.clear(ctx)
		return nil, false
	}
	next, err := p.issueLocked(ctx, acct)
	if err != nil {
		p.log.Warn("identity.local.refresh.fail", "err", err)
		return nil, false
	}
	return next, true
}

func (p *LocalProvider) GetUser(ctx context.Context) (*User, error) {
	s, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	u := s.User
	return &u, nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, pw string) (*Session, error) {
	const op = "identity.local.SignUp"

	email, err := validateCredentials(op, email, pw)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Password.ValidateFor(pw, email); err != nil {
		return nil, remote.Invalid(op, err.Error())
	}
	hash, err := p.cfg.Password.Hash(pw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	accounts := p.accountsLocked(ctx)
	if _, ok := accounts[email]; ok {
		p.mu.Unlock()
		return nil, ErrEmailTaken
	}

	now := p.now()
	id, err := ids.NewULID(now)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acct := localAccount{ID: id, Email: email, PasswordHash: hash, CreatedAt: now}

	if p.cfg.RequireEmailConfirmation {
		code, err := randomToken(24)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		acct.ConfirmCodeHash = token.Sum(code)
		accounts[email] = acct
		p.saveAccountsLocked(ctx, accounts)
		p.mu.Unlock()

		// Stands in for the confirmation email.
		p.log.Info("identity.local.confirmation.pending", "user_id", id)
		p.pendingCodes().put(email, code)
		return nil, nil
	}

	acct.EmailConfirmedAt = &now
	accounts[email] = acct
	p.saveAccountsLocked(ctx, accounts)
	s, err := p.issueLocked(ctx, acct)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.notify.emit(EventSignedIn, s)
	return s, nil
}

func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, pw string) (*Session, error) {
	const op = "identity.local.SignInWithPassword"

	email, err := validateCredentials(op, email, pw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct, ok := p.accountsLocked(ctx)[email]
	p.mu.Unlock()
	if !ok {
		// Burn a hash so unknown emails cost the same as wrong passwords.
		_, _ = p.cfg.Password.Hash(pw)
		return nil, ErrInvalidCredentials
	}
	match, err := p.cfg.Password.Verify(acct.PasswordHash, pw)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}
	if p.cfg.RequireEmailConfirmation && !acct.user().EmailConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	p.mu.Lock()
	if p.cfg.Password.NeedsRehash(acct.PasswordHash) {
		p.rehashLocked(ctx, acct, pw)
	}
	s, err := p.issueLocked(ctx, acct)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p.notify.emit(EventSignedIn, s)
	return s, nil
}

// rehashLocked upgrades a stored hash to the current cost. Failure keeps
// the old hash; the user is already authenticated.
func (p *LocalProvider) rehashLocked(ctx context.Context, acct localAccount, pw string) {
	hash, err := p.cfg.Password.Hash(pw)
	if err != nil {
		p.log.Warn("identity.local.rehash.failed", "user_id", acct.ID, "err", err)
		return
	}
	accounts := p.accountsLocked(ctx)
	cur, ok := accounts[acct.Email]
	if !ok || cur.PasswordHash != acct.PasswordHash {
		return
	}
	cur.PasswordHash = hash
	accounts[acct.Email] = cur
	p.saveAccountsLocked(ctx, accounts)
	p.log.Info("identity.local.rehash.done", "user_id", acct.ID)
}

func (p *LocalProvider) SignInWithOAuth(context.Context, string) (OAuthStart, error) {
	return OAuthStart{}, ErrOAuthUnsupported
}

// ExchangeCode redeems an email-confirmation code and signs the user in.
func (p *LocalProvider) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	h := token.Sum(code)

	p.mu.Lock()
	accounts := p.accountsLocked(ctx)
	for email, acct := range accounts {
		if acct.ConfirmCodeHash == "" || acct.ConfirmCodeHash != h {
			continue
		}
		now := p.now()
		acct.EmailConfirmedAt = &now
		acct.ConfirmCodeHash = ""
		accounts[email] = acct
		p.saveAccountsLocked(ctx, accounts)
		s, err := p.issueLocked(ctx, acct)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		p.pendingCodes().drop(email)
		p.notify.emit(EventSignedIn, s)
		return s, nil
	}
	p.mu.Unlock()
	return nil, ErrInvalidCode
}

// ConfirmationCode returns the pending confirmation code for email. It is
// how dev tooling delivers the "email".
func (p *LocalProvider) ConfirmationCode(email string) (string, bool) {
	return p.pendingCodes().get(NormalizeEmail(email))
}

func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if s := p.sessions.load(ctx); s != nil {
		accounts := p.accountsLocked(ctx)
		key := NormalizeEmail(s.User.Email)
		if acct, ok := accounts[key]; ok && acct.ID == s.User.ID {
			acct.RefreshHash = ""
			accounts[key] = acct
			p.saveAccountsLocked(ctx, accounts)
		}
	}
	p.sessions.clear(ctx)
	p.mu.Unlock()

	p.notify.emit(EventSignedOut, nil)
	return nil
}

func (p *LocalProvider) issueLocked(ctx context.Context, acct localAccount) (*Session, error) {
	now := p.now()
	sid, err := ids.NewULID(now)
	if err != nil {
		return nil, err
	}
	refresh, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	access, exp := p.signer.issue(acct.ID, sid, now)

	// Only the refresh hash changes here; the stored record may be newer than acct.
	accounts := p.accountsLocked(ctx)
	if cur, ok := accounts[acct.Email]; ok {
		acct = cur
	}
	acct.RefreshHash = token.Sum(refresh)
	accounts[acct.Email] = acct
	p.saveAccountsLocked(ctx, accounts)

	s := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    exp,
		User:         acct.user(),
	}
	p.sessions.save(ctx, s)
	return s, nil
}

func (p *LocalProvider) accountsLocked(ctx context.Context) map[string]localAccount {
	out := make(map[string]localAccount)
	raw, ok := p.kv.Get(ctx, keyLocalAccounts)
	if !ok {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		p.log.Warn("identity.local.accounts.malformed", "err", err)
		return make(map[string]localAccount)
	}
	return out
}

func (p *LocalProvider) saveAccountsLocked(ctx context.Context, accounts map[string]localAccount) {
	b, err := json.Marshal(accounts)
	if err != nil {
		p.log.Error("identity.local.accounts.encode", "err", err)
		return
	}
	p.kv.Set(ctx, keyLocalAccounts, string(b))
}

func (p *LocalProvider) pendingCodes() *codeBook { return &p.codes }

// codeBook holds plain confirmation codes for the life of the process.
type codeBook struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *codeBook) put(email, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]string)
	}
	c.m[email] = code
}

func (c *codeBook) get(email string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[email]
	return v, ok
}

func (c *codeBook) drop(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, email)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
