package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks length and, when enabled, obvious weakness.
func (c Config) Validate(password string) error {
	return c.ValidateFor(password, "")
}

// ValidateFor is Validate plus a check that the password is not built from
// the account's email address.
func (c Config) ValidateFor(password, email string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return &PolicyError{Rule: ErrPasswordTooShort, Min: c.Policy.MinLength, Max: c.Policy.MaxLength}
	case n > c.Policy.MaxLength:
		return &PolicyError{Rule: ErrPasswordTooLong, Min: c.Policy.MinLength, Max: c.Policy.MaxLength}
	}
	if c.Policy.RejectVeryWeak && (guessable(password) || containsEmailName(password, email)) {
		return &PolicyError{Rule: ErrWeakPassword, Min: c.Policy.MinLength, Max: c.Policy.MaxLength}
	}
	return nil
}

// commonPasswords is a short deny-list, not an estimator.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "letmein": {}, "iloveyou": {},
	"dragon": {}, "dragons": {}, "dungeons": {}, "welcome": {}, "welcome1": {},
	"sunshine": {}, "football": {}, "baseball": {}, "trustno1": {}, "monkey": {},
}

func guessable(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[s]; ok {
		return true
	}
	if distinctRunes(s) <= 2 {
		return true
	}
	if allDigits(s) && utf8.RuneCountInString(s) < 12 {
		return true
	}
	return isRun(s)
}

func distinctRunes(s string) int {
	seen := make(map[rune]struct{}, 4)
	for _, r := range s {
		seen[r] = struct{}{}
		if len(seen) > 2 {
			break
		}
	}
	return len(seen)
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isRun reports an ascending or descending sequence such as "abcdefgh" or "87654321".
func isRun(s string) bool {
	rs := []rune(s)
	if len(rs) < 3 {
		return false
	}
	step := rs[1] - rs[0]
	if step != 1 && step != -1 {
		return false
	}
	for i := 2; i < len(rs); i++ {
		if rs[i]-rs[i-1] != step {
			return false
		}
	}
	return true
}

func containsEmailName(pw, email string) bool {
	name, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || utf8.RuneCountInString(name) < 4 {
		return false
	}
	return strings.Contains(strings.ToLower(pw), name)
}
