package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveCipher_GeneratesAndReusesKey(t *testing.T) {
	t.Parallel()

	ks := &MemoryKeystore{}
	ctx := context.Background()

	first := ResolveCipher(ctx, ks, discardLogger())
	if first.Mode() != ModeKeystore {
		t.Fatalf("expected keystore mode, got %s", first.Mode())
	}
	env, err := first.Seal("auth.has_account", "true")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	second := ResolveCipher(ctx, ks, discardLogger())
	got, err := second.Open("auth.has_account", env)
	if err != nil {
		t.Fatalf("second install run must read first run's data: %v", err)
	}
	if got != "true" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveCipher_FallbackPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ks   Keystore
	}{
		{name: "nil keystore", ks: nil},
		{name: "read error", ks: &MemoryKeystore{LoadErr: errors.New("keychain locked")}},
		{name: "write error", ks: &MemoryKeystore{StoreErr: errors.New("read-only")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := ResolveCipher(context.Background(), tc.ks, discardLogger())
			if c == nil {
				t.Fatalf("expected cipher")
			}
			if c.Mode() != ModeFallback {
				t.Fatalf("expected fallback mode, got %s", c.Mode())
			}
		})
	}
}

func TestFileKeystore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "localstore.key")
	ks := &FileKeystore{Path: path}
	ctx := context.Background()

	if _, err := ks.LoadKey(ctx); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	c := ResolveCipher(ctx, ks, discardLogger())
	if c.Mode() != ModeKeystore {
		t.Fatalf("expected keystore mode, got %s", c.Mode())
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Fatalf("key file perm=%o want 600", perm)
	}

	key, err := ks.LoadKey(ctx)
	if err != nil || len(key) != KeySize {
		t.Fatalf("LoadKey: len=%d err=%v", len(key), err)
	}
}

func TestFileKeystore_CorruptKeyFallsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "localstore.key")
	if err := os.WriteFile(path, []byte("not-hex"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := ResolveCipher(context.Background(), &FileKeystore{Path: path}, discardLogger())
	if c.Mode() != ModeFallback {
		t.Fatalf("expected fallback for corrupt key file, got %s", c.Mode())
	}
}
