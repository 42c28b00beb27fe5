// Package auth validates admin-panel JWTs and enforces the two-role
// capability model: admins manage everything, cashiers only sell OTP codes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Roles carried in the token's "role" claim.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// Claims is the validated identity extracted from a token.
type Claims struct {
	UserID string
	Role   string
}

// Verifier parses and validates HS256 access tokens.
type Verifier struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
}

// Parse validates the token signature and registered claims and returns the
// identity. The role claim defaults to cashier when absent.
func (v Verifier) Parse(raw string, now time.Time) (Claims, error) {
	if len(v.Secret) == 0 {
		return Claims{}, errors.New("auth: verifier missing secret")
	}

	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}

	tok, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims := Claims{UserID: tok.Subject(), Role: RoleCashier}
	if claims.UserID == "" {
		return Claims{}, errors.New("auth: token missing subject")
	}
	if role, ok := tok.Get("role"); ok {
		if s, ok := role.(string); ok && s != "" {
			claims.Role = s
		}
	}
	return claims, nil
}
