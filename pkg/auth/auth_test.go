package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_IssueAndValidate(t *testing.T) {
	// Arrange
	cfg := JWTConfig{SecretKey: "secret", Issuer: "atelier", TTL: time.Hour}
	issuer, err := NewJWTIssuer(cfg)
	require.NoError(t, err)
	validator, err := NewJWTValidator(cfg)
	require.NoError(t, err)

	// Act
	token, err := issuer.IssueToken("user-1", "a@example.com", []string{"artist"})
	require.NoError(t, err)
	claims, err := validator.ValidateToken("Bearer " + token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, []string{"artist"}, claims.Roles)
}

func TestJWT_ValidationFailures(t *testing.T) {
	validator, err := NewJWTValidator(JWTConfig{SecretKey: "secret", Issuer: "atelier"})
	require.NoError(t, err)

	sign := func(secret string, claims *Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	claims := func(mutate func(c *Claims)) *Claims {
		c := &Claims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "atelier",
				Audience:  jwt.ClaimStrings{Audience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		mutate(c)
		return c
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "wrong secret", token: sign("other", claims(func(*Claims) {})), wantErr: ErrInvalidSignature},
		{
			name:    "expired",
			token:   sign("secret", claims(func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) })),
			wantErr: ErrExpiredToken,
		},
		{
			name:    "wrong issuer",
			token:   sign("secret", claims(func(c *Claims) { c.Issuer = "someone-else" })),
			wantErr: ErrInvalidClaims,
		},
		{
			name:    "wrong audience",
			token:   sign("secret", claims(func(c *Claims) { c.Audience = jwt.ClaimStrings{"other-api"} })),
			wantErr: ErrInvalidClaims,
		},
		{
			name:    "missing subject",
			token:   sign("secret", claims(func(c *Claims) { c.UserID = "" })),
			wantErr: ErrInvalidClaims,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserContext_RoundTrip(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.Error(t, err)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "u"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u", user.UserID)
}

func TestKeyedLimiter_Allow(t *testing.T) {
	// Arrange
	now := time.Unix(1_700_000_000, 0)
	l := NewKeyedLimiter(60, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// Act / Assert: burst of two, then refused until a second passes
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "a"))
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestKeyedLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewKeyedLimiter(60, 1)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "idle")
	now = now.Add(time.Hour)
	_, _ = l.Allow(context.Background(), "fresh")

	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "fresh")
}
