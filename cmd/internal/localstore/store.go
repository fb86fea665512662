package localstore

import (
	"context"
	"log/slog"

	"tavern/cmd/internal/metrics"
	"tavern/cmd/security/vault"
)

// KV is the narrow view of Store consumed by the engine's state modules.
// Tests substitute NewStore over a MemoryBackend.
type KV interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Remove(ctx context.Context, key string)
}

// Store is the encrypted local store. It never returns errors: failures are
// logged, counted and reported as absent data.
type Store struct {
	backend Backend
	cipher  *vault.Cipher
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches counters for degraded operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore wraps backend with cipher. A nil cipher uses vault.FallbackCipher.
func NewStore(backend Backend, cipher *vault.Cipher, opts ...Option) *Store {
	if backend == nil {
		backend = UnavailableBackend{}
	}
	if cipher == nil {
		cipher = vault.FallbackCipher()
	}
	s := &Store{backend: backend, cipher: cipher, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ReducedSecurity reports whether values are sealed with the fixed fallback key.
func (s *Store) ReducedSecurity() bool { return s.cipher.ReducedSecurity() }

// Get returns the decrypted value for key. Absence, backend failure and
// decryption failure all yield ("", false).
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	env, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.fail("get", key, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	plain, err := s.cipher.Open(key, env)
	if err != nil {
		s.fail("decrypt", key, err)
		return "", false
	}
	return plain, true
}

// Set encrypts value and writes it under key.
func (s *Store) Set(ctx context.Context, key, value string) {
	env, err := s.cipher.Seal(key, value)
	if err != nil {
		s.fail("encrypt", key, err)
		return
	}
	if err := s.backend.Set(ctx, key, env); err != nil {
		s.fail("set", key, err)
	}
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil {
		s.fail("remove", key, err)
	}
}

// Clear deletes every key in the backend.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Clear(ctx); err != nil {
		s.fail("clear", "", err)
	}
}

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) fail(op, key string, err error) {
	s.metrics.StoreError(op)
	s.log.Warn("localstore."+op+".fail", "key", key, "err", err)
}
