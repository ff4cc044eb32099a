package jwt

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhub/internal/domain/models"
)

const (
	accessSecret  = "access-secret"
	refreshSecret = "refresh-secret"
)

func fakeUser() *models.User {
	return &models.User{
		ID:       gofakeit.UUID(),
		Email:    gofakeit.Email(),
		Username: gofakeit.Username(),
		FullName: gofakeit.Name(),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	user := fakeUser()
	now := time.Now()

	token, err := NewAccessToken(user, accessSecret, time.Minute, now)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, accessSecret)
	require.NoError(t, err)

	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, user.FullName, claims.FullName)
	assert.InDelta(t, now.Add(time.Minute).Unix(), claims.ExpiresAt.Unix(), 1)
}

func TestRefreshTokensAreDistinct(t *testing.T) {
	user := fakeUser()
	now := time.Now()

	first, err := NewRefreshToken(user, refreshSecret, time.Hour, now)
	require.NoError(t, err)
	second, err := NewRefreshToken(user, refreshSecret, time.Hour, now)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	claims, err := ParseRefreshToken(first, refreshSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestParse_FailCases(t *testing.T) {
	user := fakeUser()

	expired, err := NewRefreshToken(user, refreshSecret, -time.Minute, time.Now())
	require.NoError(t, err)

	valid, err := NewRefreshToken(user, refreshSecret, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name        string
		token       string
		secret      string
		expectedErr error
	}{
		{
			name:        "Expired token",
			token:       expired,
			secret:      refreshSecret,
			expectedErr: ErrTokenExpired,
		},
		{
			name:        "Wrong secret",
			token:       valid,
			secret:      accessSecret,
			expectedErr: ErrTokenInvalid,
		},
		{
			name:        "Malformed token",
			token:       "not-a-jwt",
			secret:      refreshSecret,
			expectedErr: ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRefreshToken(tt.token, tt.secret)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}
