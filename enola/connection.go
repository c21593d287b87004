package enola

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userAgent = "enola-go/0.1.0"

// connection performs the JSON POST exchanges with an Enola endpoint.
// One connection targets one base URL (primary service or backend) on
// behalf of one decoded token.
type connection struct {
	baseURL   string
	token     string
	orgID     string
	sessionID string
	client    *http.Client
}

func newConnection(baseURL, token, orgID string, client *http.Client) *connection {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &connection{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		orgID:     orgID,
		sessionID: uuid.NewString(),
		client:    client,
	}
}

// post sends body as JSON and decodes the response into dest. Responses
// with status >= 400 become *APIError; server-reported failures inside a
// 2xx envelope are left for the caller to inspect on dest.
func (c *connection) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("enola: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("enola: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Enola-Org", c.orgID)
	req.Header.Set("X-Enola-Session", c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("enola: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("enola: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("enola: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}
