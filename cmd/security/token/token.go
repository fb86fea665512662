package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

// KeyEnv names the environment variable holding the invite-token HMAC key.
// #nosec G101 -- variable name, not a credential.
const KeyEnv = "TAVERN_TOKEN_HMAC_KEY"

var (
	ErrKeyMissing  = errors.New("token: hmac key not set")
	ErrKeyTooShort = errors.New("token: hmac key too short")
)

// Sum returns the unkeyed SHA-256 hex digest of tok.
func Sum(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}

// Equal reports whether tok hashes to stored, in constant time.
func Equal(tok, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Sum(tok)), []byte(stored)) == 1
}

// Digest hashes tokens with HMAC-SHA256 when it holds a key and with plain
// SHA-256 otherwise. The zero value is the unkeyed form.
type Digest struct {
	key []byte
}

// NewDigest copies key; an empty key yields the unkeyed form.
func NewDigest(key []byte) Digest {
	if len(key) == 0 {
		return Digest{}
	}
	return Digest{key: append([]byte(nil), key...)}
}

func (d Digest) Keyed() bool { return len(d.key) > 0 }

func (d Digest) Sum(tok string) string {
	if !d.Keyed() {
		return Sum(tok)
	}
	m := hmac.New(sha256.New, d.key)
	_, _ = m.Write([]byte(tok))
	return hex.EncodeToString(m.Sum(nil))
}

// KeyFromEnv reads KeyEnv, trimmed, and enforces minBytes when positive.
func KeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(KeyEnv))
	switch {
	case raw == "":
		return nil, ErrKeyMissing
	case minBytes > 0 && len(raw) < minBytes:
		return nil, ErrKeyTooShort
	}
	return []byte(raw), nil
}
