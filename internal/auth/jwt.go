// Package auth verifies bearer tokens issued by the identity service.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

const DefaultSessionExpiry = 30 * time.Minute

// Authenticator resolves a raw token into the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type claims struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

var _ Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(secret string, expiry time.Duration) *JWTAuthenticator {
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	return &JWTAuthenticator{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue signs a session token for id. Used by tooling and tests; production
// tokens come from the identity service sharing the secret.
func (a *JWTAuthenticator) Issue(id domain.Identity) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ID:   id.UserID,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Identity{}, domain.ErrSessionExpired
	case err != nil:
		return domain.Identity{}, domain.ErrInvalidCredential
	}

	if c.ID == "" {
		return domain.Identity{}, domain.ErrInvalidCredential
	}
	role := c.Role
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	return domain.Identity{UserID: c.ID, Role: role}, nil
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
