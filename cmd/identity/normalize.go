package identity

import (
	"net/mail"
	"strings"

	"tavern/cmd/internal/remote"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateCredentials(op, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", remote.Invalid(op, "email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", remote.Invalid(op, "invalid email address")
	}
	return email, nil
}
