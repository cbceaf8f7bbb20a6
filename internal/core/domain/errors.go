package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotReady       = errors.New("artifact not available yet")
	ErrCorruptArchive = errors.New("artifact could not be extracted")
	ErrLogNotFound    = errors.New("log file not found in artifact")
	ErrTimedOut       = errors.New("polling timed out")
	ErrJobActive      = errors.New("a job is already in progress")
)

// RemoteError is a non-2xx answer of the execution platform.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransportError is a connection level failure talking to the platform.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// LogNotFoundError means the archive opened but held none of the expected
// log files. Entries lists what the archive does contain.
type LogNotFoundError struct {
	Entries []string
}

func (e *LogNotFoundError) Error() string {
	return fmt.Sprintf("[Artifact found but log file not found. Files in artifact: %s]", strings.Join(e.Entries, ", "))
}

func (e *LogNotFoundError) Is(target error) bool {
	return target == ErrLogNotFound
}

// StatusHint maps an error to the HTTP status shown next to its message.
func StatusHint(err error) int {
	var remote *RemoteError
	var transport *TransportError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrJobActive):
		return http.StatusConflict
	case errors.Is(err, ErrNotReady):
		return http.StatusNotFound
	case errors.Is(err, ErrCorruptArchive), errors.Is(err, ErrLogNotFound):
		return http.StatusAccepted
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		return remote.StatusCode
	case errors.As(err, &transport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
