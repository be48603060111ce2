package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is returned for HTTP 429 responses
	ErrRateLimited = errors.New("rate limited")
	// ErrCreditsExhausted is returned for HTTP 402 responses
	ErrCreditsExhausted = errors.New("credits exhausted")
	// ErrNoBody is returned when a streaming response carries no body
	ErrNoBody = errors.New("no response body")
)

// StatusError is a non-2xx answer from a hosted endpoint. Message is taken
// from the JSON {"error": "..."} body when the endpoint provides one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error %d", e.Code)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match the rate-limit and quota sentinels
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrCreditsExhausted
	}
	return nil
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
