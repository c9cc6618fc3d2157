package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "schemaregistry/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")

func TestGenerateAndValidate(t *testing.T) {
	token, err := jwtService.GenerateAccessToken("alice", []string{ScopeDefinitionsWrite, ScopeEntitiesWrite}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{ScopeDefinitionsWrite, ScopeEntitiesWrite}, claims.Scopes())
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestGenerateRequiresSubject(t *testing.T) {
	_, err := jwtService.GenerateAccessToken(" ", nil, time.Hour)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestValidateRejects(t *testing.T) {
	expired, err := jwtService.GenerateAccessToken("alice", nil, -time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTService("test-signing-key", "elsewhere", "test-audience").GenerateAccessToken("alice", nil, time.Hour)
	require.NoError(t, err)

	otherAudience, err := NewJWTService("test-signing-key", "test-issuer", "other").GenerateAccessToken("alice", nil, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewJWTService("another-key", "test-issuer", "test-audience").GenerateAccessToken("alice", nil, time.Hour)
	require.NoError(t, err)

	cases := map[string]struct {
		token string
		want  error
	}{
		"garbage":        {"invalid-token-string", dErrors.New(dErrors.CodeUnauthorized, "invalid token")},
		"expired":        {expired, dErrors.New(dErrors.CodeUnauthorized, "token has expired")},
		"wrong issuer":   {otherIssuer, dErrors.New(dErrors.CodeUnauthorized, "invalid token")},
		"wrong audience": {otherAudience, dErrors.New(dErrors.CodeUnauthorized, "invalid token")},
		"wrong key":      {otherKey, dErrors.New(dErrors.CodeUnauthorized, "invalid token")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := jwtService.ValidateToken(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAdapterMapsClaims(t *testing.T) {
	token, err := jwtService.GenerateAccessToken("bob", []string{ScopeEntitiesWrite}, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)
	assert.Equal(t, []string{ScopeEntitiesWrite}, claims.Scopes)
	assert.NotEmpty(t, claims.JTI)
}
