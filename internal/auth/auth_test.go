package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier(testSecret)

	token, err := v.Sign("user-1", "ana@example.com", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "ana@example.com", id.Email)
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier(testSecret)
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_WrongSecret(t *testing.T) {
	token, err := NewVerifier("another-secret").Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_WrongAudience(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"anon"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_MissingSubject(t *testing.T) {
	v := NewVerifier(testSecret)
	token, err := v.Sign("", "", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Unconfigured(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Configured())
	_, err := v.Verify("anything")
	assert.Error(t, err)

	_, err = NewVerifier(testSecret).Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	assert.Empty(t, TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(req))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{UserID: "u"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", id.UserID)
}
