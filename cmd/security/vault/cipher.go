package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the per-install key length in bytes.
const KeySize = chacha20poly1305.KeySize

const envelopePrefix = "v1."

// KeyMode tells callers where the active key came from.
type KeyMode string

const (
	// ModeKeystore means the key was generated randomly and is held by a keystore.
	ModeKeystore KeyMode = "keystore"
	// ModeFallback means the fixed, publicly derivable key is in use.
	ModeFallback KeyMode = "fallback"
)

// Cipher seals string values with XChaCha20-Poly1305.
//
// Envelope format: "v1." + base64url(nonce || ciphertext). The 24-byte nonce
// travels with the value, so the stream counter starts from the same state on
// both sides for a given key. The storage key is bound as associated data so a
// value copied under another key fails to open.
type Cipher struct {
	aead cipher.AEAD
	mode KeyMode
}

// NewCipher builds a Cipher over key, which must be KeySize bytes.
func NewCipher(key []byte, mode KeyMode) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Cipher{aead: aead, mode: mode}, nil
}

// Mode reports where the key came from.
func (c *Cipher) Mode() KeyMode { return c.mode }

// ReducedSecurity reports whether the fixed fallback key is active.
func (c *Cipher) ReducedSecurity() bool { return c.mode == ModeFallback }

// Seal encrypts plaintext and binds it to name.
func (c *Cipher) Seal(name, plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts an envelope produced by Seal for the same name.
func (c *Cipher) Open(name, envelope string) (string, error) {
	body, ok := strings.CutPrefix(envelope, envelopePrefix)
	if !ok {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", ErrMalformed
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], []byte(name))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
