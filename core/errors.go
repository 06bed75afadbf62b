package core

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ErrNoRows is returned by DataService when a single-row query matched nothing.
var ErrNoRows = errors.New("no rows in result set")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// RemoteError is returned when the remote backend rejected a call.
// Code is the backend's machine-readable error code, if any.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (err *RemoteError) Error() string {
	if err.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", err.StatusCode, err.Code, err.Message)
	}
	return fmt.Sprintf("remote error %d: %s", err.StatusCode, err.Message)
}

// ConnectionError is returned when the remote backend could not be reached.
type ConnectionError struct {
	Err error
}

func NewConnectionError(err error) error {
	return &ConnectionError{Err: err}
}

func (err *ConnectionError) Error() string {
	return "connection failed: " + err.Err.Error()
}

func (err *ConnectionError) Unwrap() error { return err.Err }

// IsConnectionError reports whether err (or its cause) means the backend could not be reached.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
