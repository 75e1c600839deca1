package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	networkErrorMessage = "Network error. Please check your connection."
	genericErrorMessage = "An error occurred"
)

var (
	// ErrNetwork matches every failure where no HTTP response was received:
	// DNS, refused connections, timeouts and cancelled contexts.
	ErrNetwork = errors.New("network error")

	// ErrEmptyResponse is returned when an operation that requires a body
	// received none.
	ErrEmptyResponse = errors.New("empty response")
)

// Error is a failed backend call. Status is 0 for network failures.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNetwork) true for network failures.
func (e *Error) Is(target error) bool {
	return target == ErrNetwork && e.Status == 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func networkError(err error) *Error {
	return &Error{Status: 0, Message: networkErrorMessage, Err: err}
}

// statusError extracts a message from the JSON "message" or "error" field,
// then the raw body, then a generic fallback.
func statusError(status int, body []byte) *Error {
	text := strings.TrimSpace(string(body))
	msg := text

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			msg = parsed.Message
		case parsed.Error != "":
			msg = parsed.Error
		}
	}
	if msg == "" {
		msg = genericErrorMessage
	}
	return &Error{Status: status, Message: msg}
}
