package domain

import (
	"errors"
	"fmt"
)

// ErrAccessTokenRevoked is returned for merchant custom apps whose static token was rejected.
// There is no way to recover without a new token in the configuration.
var ErrAccessTokenRevoked = errors.New("unauthorized: access token has been revoked")

// InvalidTokenError is returned when a session token fails signature, audience or time checks
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid session token: %s: %v", e.Reason, e.Err)
	}
	return "invalid session token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// IsInvalidToken reports whether err is an InvalidTokenError
func IsInvalidToken(err error) bool {
	var target *InvalidTokenError
	return errors.As(err, &target)
}

// HTTPError is an upstream HTTP failure with its status code.
// Token endpoints and the Admin API client both report failures this way.
type HTTPError struct {
	Status int
	// Code is the OAuth error code ("invalid_subject_token") when the body carried one
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("shopify request failed: status %d: %s", e.Status, e.Code)
	}
	if e.Message != "" {
		return fmt.Sprintf("shopify request failed: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("shopify request failed: status %d", e.Status)
}

// HTTPStatus returns the status of an upstream HTTP failure, or 0
func HTTPStatus(err error) int {
	var target *HTTPError
	if errors.As(err, &target) {
		return target.Status
	}
	return 0
}

// IsInvalidSubjectToken reports whether a token exchange was rejected because the
// session token used as subject is invalid or expired
func IsInvalidSubjectToken(err error) bool {
	var target *HTTPError
	return errors.As(err, &target) && target.Status == 400 && target.Code == "invalid_subject_token"
}
