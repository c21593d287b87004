// Package enola provides a Go client for the Enola agent-tracking and
// evaluation API.
package enola

import (
	"errors"
	"fmt"
)

// ErrEmptyToken is returned when a constructor receives an empty token.
var ErrEmptyToken = errors.New("enola: token is empty")

// InvalidTokenError indicates that the token could not be decoded or is
// missing a required claim.
type InvalidTokenError struct {
	// Field names the missing claim, or is empty when the token itself
	// could not be decoded.
	Field  string
	Reason string
}

func (e *InvalidTokenError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("enola: invalid token: %s is empty", e.Field)
	}
	return fmt.Sprintf("enola: invalid token: %s", e.Reason)
}

// UnauthorizedError indicates that the token decoded but its claims lack
// a capability or identity the requested operation needs.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "enola: unauthorized: " + e.Reason
}

// ConfigurationError indicates invalid or missing constructor arguments.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "enola: invalid configuration: " + e.Message
}

// ColumnNotFoundError indicates that a configured batch column mapping
// names a column that does not exist in the input dataset.
type ColumnNotFoundError struct {
	// Mapping is the configuration field that declared the column,
	// e.g. "score_value".
	Mapping string
	Column  string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("enola: column %q (%s) not found in dataset", e.Column, e.Mapping)
}

// APIError represents an error response from the Enola API with the HTTP
// status code and the server's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enola: api error (%d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401 from the API or a
// local authorization failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	var authErr *UnauthorizedError
	return errors.As(err, &authErr)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}
