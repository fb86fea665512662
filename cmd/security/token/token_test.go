package token

import (
	"errors"
	"testing"
)

func TestDigest(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef0123456789abcdef")
	plain := Digest{}
	keyed := NewDigest(key)

	if plain.Keyed() || !keyed.Keyed() {
		t.Fatalf("Keyed() plain=%v keyed=%v", plain.Keyed(), keyed.Keyed())
	}
	if got := plain.Sum("abc"); got != Sum("abc") || len(got) != 64 {
		t.Fatalf("unkeyed digest = %q", got)
	}
	if keyed.Sum("abc") == Sum("abc") {
		t.Fatalf("keyed digest should differ from plain sha256")
	}
	if keyed.Sum("abc") != NewDigest(key).Sum("abc") {
		t.Fatalf("keyed digest should be deterministic")
	}

	key[0] = 'X'
	if keyed.Sum("abc") != NewDigest([]byte("0123456789abcdef0123456789abcdef")).Sum("abc") {
		t.Fatalf("digest should not alias the caller's key")
	}
	if NewDigest(nil).Keyed() {
		t.Fatalf("empty key should give the unkeyed form")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	stored := Sum("refresh-token")
	cases := []struct {
		tok, stored string
		want        bool
	}{
		{tok: "refresh-token", stored: stored, want: true},
		{tok: "other", stored: stored, want: false},
		{tok: "", stored: "", want: false},
		{tok: "refresh-token", stored: "", want: false},
	}
	for _, tc := range cases {
		if got := Equal(tc.tok, tc.stored); got != tc.want {
			t.Fatalf("Equal(%q, %q)=%v want %v", tc.tok, tc.stored, got, tc.want)
		}
	}
}

func TestKeyFromEnv(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "missing", value: "  ", wantErr: ErrKeyMissing},
		{name: "short", value: "tiny", wantErr: ErrKeyTooShort},
		{name: "ok", value: " 0123456789abcdef0123456789abcdef ", wantErr: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(KeyEnv, tc.value)
			key, err := KeyFromEnv(32)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("KeyFromEnv()=%v want %v", err, tc.wantErr)
			}
			if err == nil && string(key) != "0123456789abcdef0123456789abcdef" {
				t.Fatalf("key not trimmed: %q", key)
			}
		})
	}
}
