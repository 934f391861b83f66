// ABOUTME: Error taxonomy for provider calls
// ABOUTME: Separates transport failures, backend-reported failures, and unsupported capabilities

package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupported is returned when an optional capability is invoked on a
// provider that does not implement it.
var ErrUnsupported = errors.New("capability not supported by provider")

// NetworkError means the backend could not be reached.
type NetworkError struct {
	Provider string
	Op       string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s (%s): %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a structured failure returned by the backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusCode returns the backend status code carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// IsRetryable reports whether a later attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNetwork(err) {
		return true
	}
	code := StatusCode(err)
	return code == http.StatusTooManyRequests || code >= 500
}
