// Package app wires the tavern runtime: config, logging, the encrypted local
// store, remote stores, the identity provider and the session engine.
package app

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tavern/cmd/identity"
	"tavern/cmd/internal/authstate"
	"tavern/cmd/internal/invite"
	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/membership"
	"tavern/cmd/internal/metrics"
	"tavern/cmd/internal/pendinginvite"
	"tavern/cmd/internal/pgschema"
	"tavern/cmd/internal/profile"
	"tavern/cmd/internal/redirect"
	"tavern/cmd/security/password"
	"tavern/cmd/security/vault"
)

// ErrNoDatabase is returned by operations that need TAVERN_DATABASE_URL.
var ErrNoDatabase = errors.New("app: database not configured")

// App owns every long-lived dependency of one tavern process.
type App struct {
	cfg Config
	log *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	kv     *localstore.Store
	cipher *vault.Cipher
	pool   *pgxpool.Pool

	provider  identity.Provider
	profiles  profile.Store
	members   membership.Store
	invites   *invite.Service
	pending   *pendinginvite.Cache
	redirects *redirect.Guard
	manager   *authstate.Manager

	inviteThrottle *failureThrottle
	stopWatch      func()
}

// New constructs a fully wired App. On error everything opened so far is closed.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	hmacKey, err := tokenHMACKey(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		log:            log,
		registry:       prometheus.NewRegistry(),
		inviteThrottle: newFailureThrottle(cfg.InviteOpenMaxFailures, cfg.InviteOpenWindow),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, err
	}

	if err = a.openLocal(ctx); err != nil {
		return nil, err
	}
	if err = a.openRemote(ctx, hmacKey); err != nil {
		return nil, err
	}
	if err = a.openProvider(ctx); err != nil {
		return nil, err
	}

	a.pending = pendinginvite.NewCache(a.kv,
		pendinginvite.WithTTL(cfg.PendingInviteTTL),
		pendinginvite.WithLogger(log))
	a.redirects = redirect.NewGuard(a.kv,
		redirect.WithWindow(cfg.RedirectWindow),
		redirect.WithMaxAttempts(cfg.RedirectMaxAttempts),
		redirect.WithLogger(log),
		redirect.WithMetrics(a.metrics))

	redeemer := invite.NewRedeemer(a.invites, a.profiles, a.members,
		invite.WithRedeemerLogger(log),
		invite.WithRedeemerMetrics(a.metrics))

	a.manager, err = authstate.New(authstate.Config{
		Store:     a.kv,
		Provider:  a.provider,
		Profiles:  a.profiles,
		Redeemer:  redeemer,
		Pending:   a.pending,
		Redirects: a.redirects,
		Logger:    log,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, err
	}
	a.stopWatch = a.manager.Watch(context.WithoutCancel(ctx))

	log.Info("app.ready",
		"platform", cfg.Platform,
		"key_mode", string(a.cipher.Mode()),
		"db_enabled", a.pool != nil,
		"identity", a.providerKind())
	return a, nil
}

func (a *App) openLocal(ctx context.Context) error {
	a.cipher = vault.ResolveCipher(ctx, a.keystore(), a.log)
	a.metrics.KeyMode(string(a.cipher.Mode()))

	backend, err := localstore.OpenBackend(ctx, localstore.OpenConfig{
		Platform:    localstore.Platform(a.cfg.Platform),
		DataDir:     a.cfg.DataDir,
		WebStorage:  a.cfg.WebStorage,
		RedisURL:    a.cfg.RedisURL,
		RedisPrefix: a.cfg.RedisPrefix,
	})
	if err != nil {
		return err
	}
	a.kv = localstore.NewStore(backend, a.cipher,
		localstore.WithLogger(a.log),
		localstore.WithMetrics(a.metrics))
	return nil
}

// keystore returns nil on the web platform, which has no secure key storage.
func (a *App) keystore() vault.Keystore {
	if localstore.Platform(a.cfg.Platform) == localstore.PlatformWeb {
		return nil
	}
	switch a.cfg.Keystore {
	case KeystoreOS:
		return vault.NewOSKeystore()
	case KeystoreFile:
		if a.cfg.DataDir == "" {
			return nil
		}
		return &vault.FileKeystore{Path: filepath.Join(a.cfg.DataDir, "install.key")}
	default:
		return nil
	}
}

// openRemote selects Postgres-backed stores, or in-memory ones when no
// database is configured.
func (a *App) openRemote(ctx context.Context, hmacKey []byte) error {
	var inviteStore invite.Store
	svcOpts := []invite.Option{}
	if hmacKey != nil {
		svcOpts = append(svcOpts, invite.WithHMACKey(hmacKey))
	}

	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		a.profiles = profile.NewMemoryStore()
		a.members = membership.NewMemoryStore()
		inviteStore = invite.NewMemoryStore()
	} else {
		pool, err := openPool(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.pool = pool
		registerPoolGauges(a.registry, pool)
		a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

		if a.profiles, err = profile.NewPostgresStore(pool, profile.WithSchema(a.cfg.DBSchema)); err != nil {
			return err
		}
		if a.members, err = membership.NewPostgresStore(pool, membership.WithSchema(a.cfg.DBSchema)); err != nil {
			return err
		}
		if inviteStore, err = invite.NewPostgresStore(pool, invite.WithSchema(a.cfg.DBSchema)); err != nil {
			return err
		}
	}

	svc, err := invite.NewService(inviteStore, svcOpts...)
	if err != nil {
		return err
	}
	a.invites = svc
	return nil
}

func (a *App) openProvider(ctx context.Context) error {
	if a.cfg.IdentityURL != "" {
		p, err := identity.NewHTTPProvider(identity.HTTPConfig{
			BaseURL:     a.cfg.IdentityURL,
			APIKey:      a.cfg.IdentityAPIKey,
			RedirectURL: a.cfg.OAuthRedirectURL,
			Timeout:     a.cfg.IdentityTimeout,
		}, a.kv, identity.WithHTTPLogger(a.log))
		if err != nil {
			return err
		}
		a.provider = p
		return nil
	}

	lcfg := identity.DefaultLocalConfig()
	lcfg.Password = password.DefaultConfig()
	lcfg.RequireEmailConfirmation = a.cfg.RequireEmailCheck
	p, err := identity.NewLocalProvider(ctx, a.kv, lcfg, identity.WithLocalLogger(a.log))
	if err != nil {
		return err
	}
	a.provider = p
	return nil
}

func (a *App) providerKind() string {
	switch a.provider.(type) {
	case *identity.HTTPProvider:
		return "http"
	case *identity.LocalProvider:
		return "local"
	default:
		return "custom"
	}
}

func (a *App) Config() Config { return a.cfg }
func (a *App) Logger() *slog.Logger { return a.log }
func (a *App) Manager() *authstate.Manager { return a.manager }
func (a *App) Invites() *invite.Service { return a.invites }
func (a *App) Provider() identity.Provider { return a.provider }
func (a *App) Store() *localstore.Store { return a.kv }
func (a *App) Registry() *prometheus.Registry { return a.registry }
func (a *App) ReducedSecurity() bool { return a.cipher != nil && a.cipher.ReducedSecurity() }
func (a *App) PendingInvite() *pendinginvite.Cache { return a.pending }

// Migrate applies the remote schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.pool == nil {
		return ErrNoDatabase
	}
	if err := pgschema.Apply(ctx, a.pool, a.cfg.DBSchema); err != nil {
		return err
	}
	a.log.Info("db.migrated", "schema", a.cfg.DBSchema)
	return nil
}

// Close releases the local store and the database pool.
func (a *App) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	var err error
	if a.kv != nil {
		err = a.kv.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return err
}
