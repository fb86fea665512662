package localstore

// Fixed keys owned by the session and invite engine. Values are opaque
// encrypted envelopes.
const (
	KeyHasAccount      = "auth.has_account"
	KeySession         = "auth.session"
	KeyPKCEVerifier    = "auth.pkce_verifier"
	KeyRedirectAttempt = "nav.redirect_attempt"
	KeyPendingInvite   = "invite.pending"
)
