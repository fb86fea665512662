package vault

import "errors"

var (
	// ErrInvalidKey is returned when key material is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("vault: invalid key")

	// ErrKeyNotFound is returned by a Keystore that holds no key yet.
	ErrKeyNotFound = errors.New("vault: key not found")

	// ErrMalformed is returned when an envelope cannot be parsed.
	ErrMalformed = errors.New("vault: malformed envelope")

	// ErrDecrypt is returned when authentication fails (wrong key or tampered data).
	ErrDecrypt = errors.New("vault: decrypt failed")
)
