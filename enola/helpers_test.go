package enola

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// mockServer creates an httptest server that mimics the Enola API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testToken builds a signed service-account JWT pointing both service
// and backend URLs at the given server. Signature verification is not
// performed client-side, so the signing key is arbitrary.
func testToken(t *testing.T, serverURL string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"orgId":            "org-test",
		"agentDeployId":    "deploy-42",
		"id":               "sa-1",
		"displayName":      "test service account",
		"url":              serverURL,
		"urlBackend":       serverURL,
		"canTracking":      true,
		"canEvaluate":      true,
		"canGetExecutions": true,
		"isServiceAccount": true,
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return token
}
