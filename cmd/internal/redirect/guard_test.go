package redirect

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"tavern/cmd/internal/localstore"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(t *testing.T) (*Guard, *fakeClock, *localstore.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := localstore.NewStore(localstore.NewMemoryBackend(), nil, localstore.WithLogger(log))
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewGuard(store, WithClock(clock.Now), WithLogger(log)), clock, store
}

func TestGuard_RefusesThirdAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, _, _ := newTestGuard(t)

	want := []bool{true, true, false, false}
	for i, w := range want {
		if got := g.IsSafeToRedirect(ctx, "/complete-profile"); got != w {
			t.Fatalf("call %d: IsSafeToRedirect() = %v, want %v", i+1, got, w)
		}
	}
}

func TestGuard_DifferentRouteResets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, _, _ := newTestGuard(t)

	if !g.IsSafeToRedirect(ctx, "X") || !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("first two X attempts should pass")
	}
	if !g.IsSafeToRedirect(ctx, "Y") {
		t.Fatalf("Y should pass")
	}
	if !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("X after Y should restart at count 1")
	}
	if !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("second X after reset should pass")
	}
	if g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("third X after reset should be refused")
	}
}

func TestGuard_WindowExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, clock, _ := newTestGuard(t)

	g.IsSafeToRedirect(ctx, "X")
	g.IsSafeToRedirect(ctx, "X")

	clock.Advance(5 * time.Minute)
	if g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("exactly at the window edge the attempt still counts")
	}

	clock.Advance(5*time.Minute + time.Millisecond)
	if !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("stale record should reset")
	}
	a, ok := g.Current(ctx)
	if !ok || a.Count != 1 || a.TargetRoute != "X" {
		t.Fatalf("Current() = %+v, %v; want count 1 for X", a, ok)
	}
}

func TestGuard_ClearAndForceAllow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, reset := range map[string]func(*Guard){
		"clear":       func(g *Guard) { g.Clear(ctx) },
		"force allow": func(g *Guard) { g.ForceAllow(ctx) },
	} {
		g, _, _ := newTestGuard(t)
		g.IsSafeToRedirect(ctx, "X")
		g.IsSafeToRedirect(ctx, "X")
		g.IsSafeToRedirect(ctx, "X")

		reset(g)
		if _, ok := g.Current(ctx); ok {
			t.Fatalf("%s: record should be gone", name)
		}
		if !g.IsSafeToRedirect(ctx, "X") {
			t.Fatalf("%s: redirect should be allowed again", name)
		}
	}
}

func TestGuard_MalformedRecordTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, _, store := newTestGuard(t)

	store.Set(ctx, localstore.KeyRedirectAttempt, "{not json")
	if !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("malformed record should not block")
	}
	if a, _ := g.Current(ctx); a.Count != 1 {
		t.Fatalf("count = %d, want 1", a.Count)
	}
}

func TestGuard_CustomLimits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := localstore.NewStore(localstore.NewMemoryBackend(), nil)
	g := NewGuard(store, WithMaxAttempts(2), WithWindow(time.Second))

	if !g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("first attempt should pass")
	}
	if g.IsSafeToRedirect(ctx, "X") {
		t.Fatalf("second attempt should be refused with max 2")
	}
}
