package vault

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

func TestNewCipher_KeyLength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{"16 bytes", 16, true},
		{"31 bytes", 31, true},
		{"32 bytes", 32, false},
		{"64 bytes", 64, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCipher(make([]byte, tc.keyLen), ModeKeystore)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewCipher() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	ciphers := map[string]*Cipher{
		"fallback": FallbackCipher(),
	}
	keyed, err := NewCipher(newTestKey(t), ModeKeystore)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	ciphers["keystore"] = keyed

	inputs := []string{"", "true", "refresh-token-Ω", strings.Repeat("x", 4096), `{"token":"abc","worldName":"Waterdeep"}`}

	for name, c := range ciphers {
		for _, in := range inputs {
			env, err := c.Seal("auth.session", in)
			if err != nil {
				t.Fatalf("%s: Seal: %v", name, err)
			}
			if strings.Contains(env, in) && in != "" {
				t.Fatalf("%s: envelope leaks plaintext", name)
			}
			got, err := c.Open("auth.session", env)
			if err != nil {
				t.Fatalf("%s: Open: %v", name, err)
			}
			if got != in {
				t.Fatalf("%s: round trip mismatch: got %q want %q", name, got, in)
			}
		}
	}
}

func TestCipher_SealIsRandomized(t *testing.T) {
	t.Parallel()

	c := FallbackCipher()
	a, _ := c.Seal("k", "same")
	b, _ := c.Seal("k", "same")
	if a == b {
		t.Fatalf("expected distinct envelopes for repeated seal")
	}
}

func TestCipher_OpenFailures(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(newTestKey(t), ModeKeystore)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	env, err := c.Seal("invite.pending", "payload")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	other, _ := NewCipher(newTestKey(t), ModeKeystore)

	if _, err := other.Open("invite.pending", env); err != ErrDecrypt {
		t.Fatalf("wrong key: expected ErrDecrypt, got %v", err)
	}
	if _, err := c.Open("auth.session", env); err != ErrDecrypt {
		t.Fatalf("wrong name: expected ErrDecrypt, got %v", err)
	}
	if _, err := c.Open("invite.pending", "plain-text"); err != ErrMalformed {
		t.Fatalf("no prefix: expected ErrMalformed, got %v", err)
	}
	if _, err := c.Open("invite.pending", "v1.!!!"); err != ErrMalformed {
		t.Fatalf("bad base64: expected ErrMalformed, got %v", err)
	}
	if _, err := c.Open("invite.pending", "v1.AAAA"); err != ErrMalformed {
		t.Fatalf("short body: expected ErrMalformed, got %v", err)
	}
}

func TestFallbackKey_Deterministic(t *testing.T) {
	t.Parallel()

	a, b := FallbackKey(), FallbackKey()
	if !bytes.Equal(a, b) {
		t.Fatalf("fallback key must be stable across calls")
	}
	if len(a) != KeySize {
		t.Fatalf("fallback key len=%d want %d", len(a), KeySize)
	}
	if !FallbackCipher().ReducedSecurity() {
		t.Fatalf("fallback cipher must report reduced security")
	}
}
