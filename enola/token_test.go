package enola

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToken(t *testing.T) {
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		c["urlBackend"] = "https://backend.example.com"
	})

	info, err := DecodeToken(token)
	require.NoError(t, err)

	assert.Equal(t, "org-test", info.OrgID)
	assert.Equal(t, "deploy-42", info.AgentDeployID)
	assert.Equal(t, "sa-1", info.ServiceAccountID)
	assert.Equal(t, "test service account", info.ServiceAccountName)
	assert.Equal(t, "https://api.example.com", info.ServiceURL)
	assert.Equal(t, "https://backend.example.com", info.BackendURL)
	assert.True(t, info.CanTracking)
	assert.True(t, info.CanEvaluate)
	assert.True(t, info.CanGetExecutions)
	assert.True(t, info.IsServiceAccount)
}

func TestDecodeTokenEmpty(t *testing.T) {
	_, err := DecodeToken("")
	require.ErrorIs(t, err, ErrEmptyToken)
}

func TestDecodeTokenMalformed(t *testing.T) {
	_, err := DecodeToken("not-a-jwt")

	var invalidErr *InvalidTokenError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDecodeTokenMissingClaims(t *testing.T) {
	tests := []struct {
		name  string
		claim string
	}{
		{"missing service url", "url"},
		{"missing backend url", "urlBackend"},
		{"missing org id", "orgId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
				delete(c, tt.claim)
			})

			_, err := DecodeToken(token)
			var invalidErr *InvalidTokenError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, tt.claim, invalidErr.Field)
		})
	}
}

func TestDecodeTokenNotServiceAccount(t *testing.T) {
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		c["isServiceAccount"] = false
	})

	info, err := DecodeToken(token)
	require.NoError(t, err)
	assert.False(t, info.IsServiceAccount)

	err = info.requireServiceAccount()
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}

func TestDecodeTokenMissingDeployID(t *testing.T) {
	token := testToken(t, "https://api.example.com", func(c jwt.MapClaims) {
		delete(c, "agentDeployId")
	})

	info, err := DecodeToken(token)
	require.NoError(t, err)

	err = info.requireServiceAccount()
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}

func TestIsUnauthorizedHelper(t *testing.T) {
	assert.True(t, IsUnauthorized(&APIError{StatusCode: 401}))
	assert.True(t, IsUnauthorized(&UnauthorizedError{Reason: "nope"}))
	assert.False(t, IsUnauthorized(&APIError{StatusCode: 404}))
	assert.False(t, IsUnauthorized(errors.New("other")))
}
