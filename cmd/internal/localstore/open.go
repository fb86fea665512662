package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Platform selects the backend once, at construction time.
type Platform string

const (
	PlatformNative Platform = "native"
	PlatformWeb    Platform = "web"
	PlatformRedis  Platform = "redis"
)

// OpenConfig describes which backend to build.
type OpenConfig struct {
	Platform Platform

	// DataDir holds tavern.db on native hosts.
	DataDir string

	// WebStorage reports whether the web host exposes a storage API.
	WebStorage bool

	RedisURL    string
	RedisPrefix string
}

// OpenBackend builds the Backend for cfg.Platform.
func OpenBackend(ctx context.Context, cfg OpenConfig) (Backend, error) {
	switch cfg.Platform {
	case PlatformWeb:
		if !cfg.WebStorage {
			return UnavailableBackend{}, nil
		}
		return NewMemoryBackend(), nil
	case PlatformRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, fmt.Errorf("localstore: redis platform requires a redis url")
		}
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case PlatformNative, "":
		dir := strings.TrimSpace(cfg.DataDir)
		if dir == "" {
			return nil, fmt.Errorf("localstore: native platform requires a data dir")
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return OpenSQLite(ctx, filepath.Join(dir, "tavern.db"))
	default:
		return nil, fmt.Errorf("localstore: unknown platform %q", cfg.Platform)
	}
}
