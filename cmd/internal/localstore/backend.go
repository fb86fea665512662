package localstore

import (
	"context"
	"sync"
)

// Backend is a plain string key/value primitive.
type Backend interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by this backend.
	Clear(ctx context.Context) error
	Close() error
}

// MemoryBackend keeps values in process memory. It stands in for
// browser-origin storage and is the default for tests.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]string)}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *MemoryBackend) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.data)
	return nil
}

// Close closes the backend (noop for memory).
func (b *MemoryBackend) Close() error { return nil }

// Raw returns the stored (encrypted) value for key. Tests use it to tamper with data.
func (b *MemoryBackend) Raw(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

// UnavailableBackend models a web host without a storage API.
// Writes are silently dropped and reads always miss; this is a documented
// limitation, not an error.
type UnavailableBackend struct{}

func (UnavailableBackend) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (UnavailableBackend) Set(context.Context, string, string) error        { return nil }
func (UnavailableBackend) Delete(context.Context, string) error             { return nil }
func (UnavailableBackend) Clear(context.Context) error                      { return nil }
func (UnavailableBackend) Close() error                                     { return nil }
