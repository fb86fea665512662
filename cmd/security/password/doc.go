// Package password hashes and verifies account passwords for the embedded
// (offline/dev) identity provider.
//
// Hashes are Argon2id in a PHC-like encoded string. Hash strings are treated
// as untrusted input during Verify; parameters far above the configured cost
// are refused.
package password
