// Package redirect bounds how often route guards may bounce the user to the
// same screen.
package redirect

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/metrics"
)

const (
	DefaultWindow      = 5 * time.Minute
	DefaultMaxAttempts = 3
)

// Attempt is the single persisted redirect record.
type Attempt struct {
	Count       int    `json:"count"`
	LastAttempt int64  `json:"lastAttempt"` // unix ms
	TargetRoute string `json:"targetRoute"`
}

// Guard is a per-device loop detector over (target route, time window).
// Reads and writes are best-effort; concurrent callers may overcount by one.
type Guard struct {
	store       localstore.KV
	window      time.Duration
	maxAttempts int
	now         func() time.Time
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithWindow sets how long an attempt keeps counting (default 5m).
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithMaxAttempts sets the count at which redirects are refused (default 3).
func WithMaxAttempts(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func NewGuard(store localstore.KV, opts ...Option) *Guard {
	g := &Guard{
		store:       store,
		window:      DefaultWindow,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// IsSafeToRedirect records an attempt to navigate to route and reports
// whether the navigation may proceed. A false result means the caller must
// stop and render a terminal screen.
func (g *Guard) IsSafeToRedirect(ctx context.Context, route string) bool {
	now := g.now()

	prev, ok := g.load(ctx)
	if !ok || prev.TargetRoute != route || now.Sub(time.UnixMilli(prev.LastAttempt)) > g.window {
		g.save(ctx, Attempt{Count: 1, LastAttempt: now.UnixMilli(), TargetRoute: route})
		return true
	}

	next := Attempt{Count: prev.Count + 1, LastAttempt: now.UnixMilli(), TargetRoute: route}
	g.save(ctx, next)

	if next.Count >= g.maxAttempts {
		g.metrics.RedirectRefused(route)
		g.log.Warn("redirect.refused", "route", route, "count", next.Count)
		return false
	}
	return true
}

// Clear wipes the record. Call once a stable, non-redirecting screen is reached.
func (g *Guard) Clear(ctx context.Context) {
	g.store.Remove(ctx, localstore.KeyRedirectAttempt)
}

// ForceAllow is the recovery escape hatch; it is equivalent to Clear.
func (g *Guard) ForceAllow(ctx context.Context) {
	g.log.Info("redirect.force_allow")
	g.Clear(ctx)
}

// Current returns the stored record, if any.
func (g *Guard) Current(ctx context.Context) (Attempt, bool) {
	return g.load(ctx)
}

func (g *Guard) load(ctx context.Context) (Attempt, bool) {
	raw, ok := g.store.Get(ctx, localstore.KeyRedirectAttempt)
	if !ok {
		return Attempt{}, false
	}
	var a Attempt
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		g.log.Warn("redirect.record.malformed", "err", err)
		return Attempt{}, false
	}
	return a, true
}

func (g *Guard) save(ctx context.Context, a Attempt) {
	b, err := json.Marshal(a)
	if err != nil {
		g.log.Error("redirect.record.encode", "err", err)
		return
	}
	g.store.Set(ctx, localstore.KeyRedirectAttempt, string(b))
}
