package network

import (
	"fmt"
	"net/http"
)

// ConfigError means the upload was rejected before any request was sent:
// empty artifact, chunk size below the floor, missing parameters.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid upload configuration: %s", e.Reason)
}

// AuthError means the service rejected the bearer token.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by the service (HTTP %d)", e.StatusCode)
}

// ProtocolError means the service answered in a way the wire protocol does not
// allow: an unexpected status code or a missing required header. Body carries
// the response body for diagnostics.
type ProtocolError struct {
	Reason     string
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Reason, e.StatusCode, e.Body)
}

// NetworkError wraps a transport-level failure (connection, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// FinalizeError means every chunk was committed but the completion call was
// rejected. Both phases must succeed for the upload to count as done.
type FinalizeError struct {
	StatusCode int
	Body       string
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize rejected (HTTP %d): %s", e.StatusCode, e.Body)
}

func isAuthStatus(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}
