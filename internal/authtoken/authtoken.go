// Package authtoken issues and verifies signed capability tokens for
// registered agents. It is an optional
// seam: the registry issues a token on Register only when constructed
// with an Issuer, and verification is only consulted by callers that
// were themselves constructed with a Verifier. A deployment that never
// wires either gets the same behavior as before this package existed.
package authtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the capability token payload: agent identity plus the
// standard registered claims (issued-at, expiry) jwt/v5 expects.
type Claims struct {
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// DefaultTTL is how long an issued token remains valid when the caller
// does not specify one.
const DefaultTTL = 1 * time.Hour

// Issuer signs capability tokens for newly registered agents.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an Issuer over an HMAC secret. ttl <= 0 falls back to
// DefaultTTL.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl}
}

// Issue mints a signed token binding agentID and registeredAt, expiring
// after the Issuer's TTL.
func (i *Issuer) Issue(agentID string, registeredAt time.Time) (string, error) {
	claims := Claims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(registeredAt),
			ExpiresAt: jwt.NewNumericDate(registeredAt.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verifier checks capability tokens presented by callers as an optional
// bearer credential on heartbeat updates and sends.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier over the same HMAC secret an Issuer uses.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates tokenString, returning the embedded agent
// identity on success. It fails if the signature, expiry, or structure
// is invalid, or if the token's subject does not match expectedAgentID.
func (v *Verifier) Verify(tokenString, expectedAgentID string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authtoken: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("authtoken: %w", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("authtoken: token not valid")
	}
	if claims.AgentID != expectedAgentID {
		return Claims{}, fmt.Errorf("authtoken: token subject %q does not match agent %q", claims.AgentID, expectedAgentID)
	}
	return claims, nil
}
