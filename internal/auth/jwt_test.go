package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/grocery-store/internal/core/domain"
)

func TestAuthenticate_RoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", time.Minute)

	token, err := a.Issue(domain.Identity{UserID: "u-1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestAuthenticate_Failures(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", time.Minute)

	expired := NewJWTAuthenticator("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(domain.Identity{UserID: "u-1", Role: domain.RoleUser})
	require.NoError(t, err)

	foreign, err := NewJWTAuthenticator("other", time.Minute).Issue(domain.Identity{UserID: "u-1"})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":  "u-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", domain.ErrUnauthenticated},
		{"expired", old, domain.ErrSessionExpired},
		{"wrong secret", foreign, domain.ErrInvalidCredential},
		{"alg none", none, domain.ErrInvalidCredential},
		{"garbage", "not.a.jwt", domain.ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthenticate_UnknownRoleIsUser(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", time.Minute)
	token, err := a.Issue(domain.Identity{UserID: "u-2", Role: "SUPERUSER"})
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, id.Role)
}

func TestParseBearer(t *testing.T) {
	assert.Equal(t, "abc", ParseBearer("Bearer abc"))
	assert.Equal(t, "abc", ParseBearer("bearer abc"))
	assert.Empty(t, ParseBearer("Basic abc"))
	assert.Empty(t, ParseBearer("Bearer "))
	assert.Empty(t, ParseBearer(""))
}
