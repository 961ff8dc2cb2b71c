// Package claims decodes the access tokens handed out by the backend.
//
// Tokens are decoded without signature verification: the client never holds the signing
// key and only needs the expiry and identity claims to schedule renewals.
package claims

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// DefaultRole is used when neither the login response nor the token name a role.
const DefaultRole = "USER"

type Claims struct {
	Username    string           `json:"username,omitempty"`
	Role        string           `json:"role,omitempty"`
	Roles       jwt.ClaimStrings `json:"roles,omitempty"`
	Authorities jwt.ClaimStrings `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	c := &Claims{}
	if _, _, err := parser.ParseUnverified(token, c); err != nil {
		return nil, errors.Wrap(err, "decode token")
	}
	return c, nil
}

// Expiry returns the exp claim. ok is false when the token cannot be decoded or has no exp.
func Expiry(token string) (time.Time, bool) {
	c, err := Decode(token)
	if err != nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// IsExpired reports whether now >= exp - margin. The boundary counts as expired, and so
// does a token without a readable exp.
func IsExpired(token string, margin time.Duration, now time.Time) bool {
	exp, ok := Expiry(token)
	if !ok {
		return true
	}
	return !now.Before(exp.Add(-margin))
}

// TimeUntilExpiry returns max(0, exp - now - margin).
func TimeUntilExpiry(token string, margin time.Duration, now time.Time) time.Duration {
	exp, ok := Expiry(token)
	if !ok {
		return 0
	}
	d := exp.Sub(now) - margin
	if d < 0 {
		return 0
	}
	return d
}

// Username returns the username claim, falling back to sub.
func Username(token string) string {
	c, err := Decode(token)
	if err != nil {
		return ""
	}
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Role returns role, else the first of roles, else the first of authorities.
func Role(token string) string {
	c, err := Decode(token)
	if err != nil {
		return ""
	}
	switch {
	case c.Role != "":
		return c.Role
	case len(c.Roles) > 0:
		return c.Roles[0]
	case len(c.Authorities) > 0:
		return c.Authorities[0]
	}
	return ""
}
