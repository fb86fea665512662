package profile

import (
	"strings"

	"tavern/cmd/internal/remote"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 32
)

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername trims s and checks length and charset ([A-Za-z0-9_-]).
// It returns the trimmed username.
func ValidateUsername(s string) (string, error) {
	const op = "profile.ValidateUsername"

	s = strings.TrimSpace(s)
	if len(s) < UsernameMinLen || len(s) > UsernameMaxLen {
		return "", remote.Invalid(op, "username must be 3 to 32 characters")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", remote.Invalid(op, "username may only contain letters, digits, '_' and '-'")
		}
	}
	return s, nil
}
