package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
)

// ResolveCipher returns the install's cipher and never fails.
//
// A nil keystore, a keystore read error, a corrupt stored key or a failed
// first-time write all end in FallbackCipher. A freshly generated key is only
// used once it has been persisted, otherwise every restart would orphan the
// data written with it.
func ResolveCipher(ctx context.Context, ks Keystore, log *slog.Logger) *Cipher {
	if log == nil {
		log = slog.Default()
	}
	if ks == nil {
		log.Warn("vault.reduced_security", "reason", "no_keystore")
		return FallbackCipher()
	}

	key, err := ks.LoadKey(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyNotFound):
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			log.Warn("vault.reduced_security", "reason", "rand_failed", "err", err)
			return FallbackCipher()
		}
		if err := ks.StoreKey(ctx, key); err != nil {
			log.Warn("vault.reduced_security", "reason", "keystore_write_failed", "err", err)
			return FallbackCipher()
		}
		log.Info("vault.key.generated")
	default:
		log.Warn("vault.reduced_security", "reason", "keystore_read_failed", "err", err)
		return FallbackCipher()
	}

	c, err := NewCipher(key, ModeKeystore)
	if err != nil {
		log.Warn("vault.reduced_security", "reason", "invalid_stored_key", "err", err)
		return FallbackCipher()
	}
	return c
}
