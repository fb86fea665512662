package identity

import (
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

var errInvalidToken = errors.New("identity: invalid access token")

// accessClaims is the minimal envelope carried by local access tokens.
type accessClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// tokenSigner issues and verifies PASETO v4.public access tokens.
type tokenSigner struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// newTokenSigner loads the Ed25519 secret key from hex, or generates one
// when secretHex is empty.
func newTokenSigner(issuer, secretHex string, ttl, skew time.Duration) (*tokenSigner, error) {
	var secret paseto.V4AsymmetricSecretKey
	if secretHex == "" {
		secret = paseto.NewV4AsymmetricSecretKey()
	} else {
		var err error
		secret, err = paseto.NewV4AsymmetricSecretKeyFromHex(secretHex)
		if err != nil {
			return nil, err
		}
	}
	return &tokenSigner{
		issuer:    issuer,
		ttl:       ttl,
		clockSkew: skew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (m *tokenSigner) secretHex() string { return m.secret.ExportHex() }

func (m *tokenSigner) issue(userID, sessionID string, now time.Time) (string, time.Time) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("uid", userID)
	_ = tok.Set("sid", sessionID)

	return tok.V4Sign(m.secret, nil), exp
}

// verify checks signature, issuer and expiry at now. An expired token fails.
func (m *tokenSigner) verify(token string, now time.Time) (accessClaims, error) {
	// Expiry is checked against the injected clock via ValidAt, not wall time.
	// Validating slightly in the future lets "nbf" tolerate small clock differences.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return accessClaims{}, errInvalidToken
	}

	exp, _ := parsed.GetExpiration()
	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return accessClaims{}, errInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return accessClaims{}, errInvalidToken
	}
	return accessClaims{UserID: uid, SessionID: sid, ExpiresAt: exp}, nil
}
