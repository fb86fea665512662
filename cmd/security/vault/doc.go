// Package vault provides the at-rest encryption used by the local key/value store.
//
// Every install owns exactly one 256-bit key. The key is generated once and
// kept in a platform keystore when one exists (OS keyring or a 0600 key file).
// When no keystore is available, or the keystore fails, a fixed key derived
// from a published label is used instead and the cipher reports ModeFallback.
// Fallback mode is obfuscation, not confidentiality: anyone with this source
// can derive the key.
//
// The cipher is scoped to one device and one install. It must not be reused
// for multi-tenant or server-side secrets.
package vault
