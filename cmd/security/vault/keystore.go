package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// Keystore holds the per-install key outside the key/value store.
type Keystore interface {
	// LoadKey returns the stored key or ErrKeyNotFound.
	LoadKey(ctx context.Context) ([]byte, error)
	// StoreKey persists key, replacing any previous one.
	StoreKey(ctx context.Context, key []byte) error
}

const (
	defaultKeyringService = "tavern"
	defaultKeyringUser    = "localstore-key"
)

// OSKeystore keeps the key in the operating system keyring
// (Keychain, Windows Credential Manager, Secret Service).
type OSKeystore struct {
	Service string
	User    string
}

// NewOSKeystore returns an OSKeystore with the default service/user names.
func NewOSKeystore() *OSKeystore {
	return &OSKeystore{Service: defaultKeyringService, User: defaultKeyringUser}
}

func (k *OSKeystore) LoadKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := keyring.Get(k.Service, k.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return decodeKey(raw)
}

func (k *OSKeystore) StoreKey(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	return keyring.Set(k.Service, k.User, hex.EncodeToString(key))
}

// FileKeystore keeps the key hex-encoded in a 0600 file.
// It is used on desktop Linux hosts without a Secret Service.
type FileKeystore struct {
	Path string
}

func (k *FileKeystore) LoadKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(k.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return decodeKey(string(b))
}

func (k *FileKeystore) StoreKey(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	if err := os.MkdirAll(filepath.Dir(k.Path), 0o700); err != nil {
		return err
	}
	tmp := k.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, k.Path)
}

// MemoryKeystore is an in-process keystore for tests.
type MemoryKeystore struct {
	mu  sync.Mutex
	key []byte

	// LoadErr and StoreErr, when set, are returned instead of touching the key.
	LoadErr  error
	StoreErr error
}

func (k *MemoryKeystore) LoadKey(_ context.Context) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.LoadErr != nil {
		return nil, k.LoadErr
	}
	if k.key == nil {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), k.key...), nil
}

func (k *MemoryKeystore) StoreKey(_ context.Context, key []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.StoreErr != nil {
		return k.StoreErr
	}
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	k.key = append([]byte(nil), key...)
	return nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}
