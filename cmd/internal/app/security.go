package app

import (
	"errors"
	"fmt"

	"tavern/cmd/security/token"
)

// MinTokenHMACKeyBytes is the shortest accepted invite-token HMAC key.
const MinTokenHMACKeyBytes = 32

// tokenHMACKey returns the invite-token HMAC key, or nil when none is set.
// With RequireTokenHMAC a missing or short key is a startup error; silently
// hashing with plain SHA-256 is not acceptable under that policy.
func tokenHMACKey(cfg Config) ([]byte, error) {
	key, err := token.KeyFromEnv(MinTokenHMACKeyBytes)
	switch {
	case err == nil:
		return key, nil
	case !cfg.RequireTokenHMAC && errors.Is(err, token.ErrKeyMissing):
		return nil, nil
	case errors.Is(err, token.ErrKeyMissing):
		return nil, fmt.Errorf("%w: TAVERN_REQUIRE_TOKEN_HMAC=true but %s is missing", ErrConfig, token.KeyEnv)
	case errors.Is(err, token.ErrKeyTooShort):
		return nil, fmt.Errorf("%w: %s is too short (min %d bytes)", ErrConfig, token.KeyEnv, MinTokenHMACKeyBytes)
	default:
		return nil, err
	}
}
