// Package auth verifies HS256 bearer tokens and resolves the caller.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-jewelry-orders/internal/users"
)

// ErrInvalidToken covers every token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier for secret. An empty issuer skips the
// issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign issues a token for id valid for ttl.
func (v *Verifier) Sign(id users.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		Role:  id.Role,
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// Parse verifies token and returns the identity it asserts.
func (v *Verifier) Parse(token string) (users.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return users.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return users.Identity{}, ErrInvalidToken
	}

	role := c.Role
	switch role {
	case "":
		role = users.RoleCustomer
	case users.RoleCustomer, users.RoleAdmin:
	default:
		return users.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return users.Identity{ID: c.Subject, Email: c.Email, Name: c.Name, Role: role}, nil
}
