package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "alice", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := GenerateToken("secret", "alice", -time.Minute)
	require.NoError(t, err)
	valid, err := GenerateToken("secret", "alice", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "expired", secret: "secret", token: expired},
		{name: "wrong secret", secret: "other", token: valid},
		{name: "garbage", secret: "secret", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = GenerateToken("secret", " ", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
