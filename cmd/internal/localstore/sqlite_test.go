package localstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tavern.db")

	b, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := b.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get() = %q, %v, %v; want v2, true, nil", v, ok, err)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatalf("expected deleted")
	}

	_ = b.Set(ctx, "a", "1")
	_ = b.Set(ctx, "b", "2")
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "a"); ok {
		t.Fatalf("expected clear")
	}
}

func TestOpenBackend_Platforms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	web, err := OpenBackend(ctx, OpenConfig{Platform: PlatformWeb, WebStorage: true})
	if err != nil {
		t.Fatalf("web: %v", err)
	}
	if _, ok := web.(*MemoryBackend); !ok {
		t.Fatalf("web with storage = %T, want *MemoryBackend", web)
	}

	bare, err := OpenBackend(ctx, OpenConfig{Platform: PlatformWeb})
	if err != nil {
		t.Fatalf("web without storage: %v", err)
	}
	if _, ok := bare.(UnavailableBackend); !ok {
		t.Fatalf("web without storage = %T, want UnavailableBackend", bare)
	}

	native, err := OpenBackend(ctx, OpenConfig{Platform: PlatformNative, DataDir: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	t.Cleanup(func() { _ = native.Close() })
	if _, ok := native.(*SQLiteBackend); !ok {
		t.Fatalf("native = %T, want *SQLiteBackend", native)
	}

	for _, cfg := range []OpenConfig{
		{Platform: PlatformNative},
		{Platform: PlatformRedis},
		{Platform: "toaster"},
	} {
		if _, err := OpenBackend(ctx, cfg); err == nil {
			t.Fatalf("OpenBackend(%+v) expected error", cfg)
		}
	}
}
