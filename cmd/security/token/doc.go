// Package token hashes opaque secrets (invite tokens, refresh tokens,
// confirmation codes) before they are persisted.
//
// Stored values are 64-char hex digests: SHA-256 by default, HMAC-SHA256 for
// invite tokens when TAVERN_TOKEN_HMAC_KEY is configured.
package token
