// Package gdrive is a read-only client for the Google Drive v3 API with
// request pacing, error classification, and the installed-app OAuth2 flow.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// Drive reports quota exhaustion as 403 with one of these reasons.
var throttleReasons = map[string]bool{
	"rateLimitExceeded":        true,
	"userRateLimitExceeded":    true,
	"sharingRateLimitExceeded": true,
	"backendError":             true,
}

// APIError wraps a sentinel error with the HTTP status code, the first
// error reason Drive reported, and its message.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify converts a *googleapi.Error into an *APIError. Errors that did
// not come back as an HTTP response (network, canceled) pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	var reason string
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}

	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}

	return &APIError{
		StatusCode: gerr.Code,
		Reason:     reason,
		Message:    msg,
		Err:        classifyStatus(gerr.Code, reason),
	}
}

// classifyStatus maps an HTTP status code (and Drive reason) to a sentinel.
func classifyStatus(code int, reason string) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if throttleReasons[reason] {
			return ErrThrottled
		}

		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// IsTransient reports whether err is worth retrying: throttling, server
// errors, and failures that never produced an HTTP response. Permission,
// not-found, and malformed-request errors are permanent. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if IsAuthFailure(err) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errors.Is(apiErr.Err, ErrThrottled) || errors.Is(apiErr.Err, ErrServerError)
	}

	return true
}

// IsAuthFailure reports whether err came from obtaining an access token
// (a revoked or expired refresh token, a rejected client). No later request
// in the run can succeed, so callers treat it as fatal.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrRefreshFailed) {
		return true
	}

	var retrieveErr *oauth2.RetrieveError

	return errors.As(err, &retrieveErr)
}
