package ecoflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ecoflow package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, ecoflow.ErrAuthentication) {
//	    // credentials are wrong, do not retry
//	}
var (
	// ErrAuthentication is returned when the cloud rejects the access key
	// or signature (HTTP 401).
	ErrAuthentication = errors.New("ecoflow: authentication failed")

	// ErrConnection is returned when the cloud cannot be reached: network
	// failures, timeouts, or malformed responses.
	ErrConnection = errors.New("ecoflow: connection failed")

	// ErrAPI is returned when the cloud answers but reports a failure,
	// either as a non-200 HTTP status or a non-zero business code in the
	// response envelope. Use errors.As with *APIError for details.
	ErrAPI = errors.New("ecoflow: api error")
)

// APIError carries the failure details reported by the cloud.
//
// It wraps ErrAPI (or ErrAuthentication for HTTP 401) so callers can
// branch with errors.Is and still inspect the vendor code and message.
type APIError struct {
	// HTTPStatus is the HTTP status code of the response.
	HTTPStatus int

	// Code is the vendor business code from the response envelope, if any.
	Code string

	// Message is the vendor error message, if any.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ecoflow: api error: code %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("ecoflow: api error: http %d: %s", e.HTTPStatus, e.Message)
}

// Unwrap maps the error onto the package sentinels.
func (e *APIError) Unwrap() error {
	if e.HTTPStatus == 401 {
		return ErrAuthentication
	}
	return ErrAPI
}
