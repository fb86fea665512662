package membership

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"tavern/cmd/internal/pgtest"
)

func TestPostgresStore_AddMember_UniqueViolation(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool, "tavern_membership")

	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewPostgresStore(pool, WithSchema(schema), WithClock(func() time.Time { return joined }))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	world := pgtest.NewULID(t)
	user := pgtest.NewULID(t)

	ok, err := store.IsMember(ctx, world, user)
	if err != nil || ok {
		t.Fatalf("IsMember() before add = %v, %v", ok, err)
	}

	m, err := store.AddMember(ctx, world, user, RolePlayer)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if !m.JoinedAt.Equal(joined) || m.Role != RolePlayer {
		t.Fatalf("AddMember() = %+v", m)
	}
	ok, err = store.IsMember(ctx, world, user)
	if err != nil || !ok {
		t.Fatalf("IsMember() after add = %v, %v", ok, err)
	}

	if _, err := store.AddMember(ctx, world, user, RolePlayer); !IsAlreadyMember(err) {
		t.Fatalf("duplicate add err = %v, want ErrAlreadyMember", err)
	}
}

func TestPostgresStore_ConcurrentAddMember(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool, "tavern_membership")

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	world := pgtest.NewULID(t)
	user := pgtest.NewULID(t)

	var created, dup atomic.Int32
	var g errgroup.Group
	for range 5 {
		g.Go(func() error {
			_, err := store.AddMember(ctx, world, user, RolePlayer)
			switch {
			case err == nil:
				created.Add(1)
			case IsAlreadyMember(err):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Load() != 1 || dup.Load() != 4 {
		t.Fatalf("created=%d dup=%d; want 1 and 4", created.Load(), dup.Load())
	}
}

func TestNewPostgresStore_RejectsBadSchema(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected nil pool error")
	}
	if _, err := NewPostgresStore(nil, WithSchema("bad;schema")); err == nil {
		t.Fatalf("expected invalid schema error")
	}
}
