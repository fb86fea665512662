// Package identity adapts identity providers to the session model the
// engine consumes.
//
// HTTPProvider talks to a hosted GoTrue-compatible auth service.
// LocalProvider is an embedded provider for offline and development use.
// Both persist the current session in the encrypted local store and
// publish session changes to in-process subscribers.
package identity
