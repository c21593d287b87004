package enola

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo holds the identity and capability claims decoded from a
// service-account token. Decoding is trust-on-read: the signature is not
// verified here, the backend verifies it on every request.
type TokenInfo struct {
	OrgID              string
	AgentDeployID      string
	ServiceAccountID   string
	ServiceAccountName string
	ServiceURL         string
	BackendURL         string
	CanTracking        bool
	CanEvaluate        bool
	CanGetExecutions   bool
	IsServiceAccount   bool
}

// DecodeToken parses a compact JWT without verifying its signature and
// extracts the Enola claims. It fails with ErrEmptyToken on an empty
// input, and with *InvalidTokenError when the token cannot be decoded or
// when the service URL, backend URL, or org id claim is absent.
func DecodeToken(token string) (*TokenInfo, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &InvalidTokenError{Reason: err.Error()}
	}

	info := &TokenInfo{
		OrgID:              claimString(claims, "orgId"),
		AgentDeployID:      claimString(claims, "agentDeployId"),
		ServiceAccountID:   claimString(claims, "id"),
		ServiceAccountName: claimString(claims, "displayName"),
		ServiceURL:         claimString(claims, "url"),
		BackendURL:         claimString(claims, "urlBackend"),
		CanTracking:        claimBool(claims, "canTracking"),
		CanEvaluate:        claimBool(claims, "canEvaluate"),
		CanGetExecutions:   claimBool(claims, "canGetExecutions"),
		IsServiceAccount:   claimBool(claims, "isServiceAccount"),
	}

	if info.ServiceURL == "" {
		return nil, &InvalidTokenError{Field: "url"}
	}
	if info.BackendURL == "" {
		return nil, &InvalidTokenError{Field: "urlBackend"}
	}
	if info.OrgID == "" {
		return nil, &InvalidTokenError{Field: "orgId"}
	}

	return info, nil
}

// requireServiceAccount checks the claims shared by the submitting
// aggregators: the token must belong to a service account with an
// agent-deploy binding.
func (t *TokenInfo) requireServiceAccount() error {
	if !t.IsServiceAccount {
		return &UnauthorizedError{Reason: "token is not a service account"}
	}
	if t.AgentDeployID == "" {
		return &UnauthorizedError{Reason: "agentDeployId is empty"}
	}
	return nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func claimBool(claims jwt.MapClaims, key string) bool {
	if v, ok := claims[key].(bool); ok {
		return v
	}
	return false
}
