package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Payload is the decoded claim set of an access token.
type Payload struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time // zero when the token carries no exp claim
	IssuedAt  time.Time
	Claims    map[string]any
}

// HasExpiry reports whether the token declared an exp claim.
func (p *Payload) HasExpiry() bool {
	return p != nil && !p.ExpiresAt.IsZero()
}

// Codec decodes access tokens without verifying them. The zero value is not usable;
// construct with NewCodec. A Codec is safe for concurrent use.
type Codec struct {
	parser *jwt.Parser
}

// NewCodec returns a Codec that accepts any signing algorithm, since the signature is
// never checked.
func NewCodec() *Codec {
	return &Codec{parser: jwt.NewParser()}
}

var defaultCodec = NewCodec()

// Decode splits token into its three segments and parses the middle one as JSON claims.
// It returns false for any malformed input.
func (c *Codec) Decode(token string) (*Payload, bool) {
	if c == nil || c.parser == nil || token == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}

	p := &Payload{Claims: map[string]any(claims)}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, false
	}
	if exp != nil {
		p.ExpiresAt = exp.Time
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, false
	}
	if iat != nil {
		p.IssuedAt = iat.Time
	}

	// sub and iss are informational; a wrong type just leaves them empty.
	p.Subject, _ = claims.GetSubject()
	p.Issuer, _ = claims.GetIssuer()

	return p, true
}

// ExpiresAt returns the advisory expiry instant of token.
func (c *Codec) ExpiresAt(token string) (time.Time, bool) {
	p, ok := c.Decode(token)
	if !ok || !p.HasExpiry() {
		return time.Time{}, false
	}
	return p.ExpiresAt, true
}

// IsExpired is fail-safe: an undecodable token counts as expired. A token without an
// exp claim never expires.
func (c *Codec) IsExpired(token string, now time.Time) bool {
	p, ok := c.Decode(token)
	if !ok {
		return true
	}
	if !p.HasExpiry() {
		return false
	}
	return !p.ExpiresAt.After(now)
}

// IsExpiringSoon is fail-open: an undecodable token is never proactively refreshed and is
// left to the reactive 401 path. It reports true when the expiry is at most threshold
// away from now, which includes tokens that already expired.
func (c *Codec) IsExpiringSoon(token string, now time.Time, threshold time.Duration) bool {
	p, ok := c.Decode(token)
	if !ok || !p.HasExpiry() {
		return false
	}
	return p.ExpiresAt.Sub(now) <= threshold
}

// Decode decodes token with the package default codec.
func Decode(token string) (*Payload, bool) {
	return defaultCodec.Decode(token)
}

// IsExpired checks token with the package default codec.
func IsExpired(token string, now time.Time) bool {
	return defaultCodec.IsExpired(token, now)
}

// IsExpiringSoon checks token with the package default codec.
func IsExpiringSoon(token string, now time.Time, threshold time.Duration) bool {
	return defaultCodec.IsExpiringSoon(token, now, threshold)
}
