// Package errors provides error types and utilities for the gpu-worker process.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrAuth          = errors.New("invalid API key")
	ErrBackendDown   = errors.New("backend unavailable")
	ErrTimeout       = errors.New("operation timed out")
	ErrShutdown      = errors.New("worker shutting down")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrNoImage       = errors.New("no image in backend response")
)

// RemoteError represents dispatch-server errors
type RemoteError struct {
	Op     string // operation being performed
	Status int    // HTTP status (0 if the request never completed)
	Err    error  // underlying error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Temporary() bool {
	// Everything on the control plane is retryable except a rejected credential.
	return !errors.Is(e.Err, ErrAuth)
}

func (e *RemoteError) Timeout() bool {
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return errors.Is(e.Err, ErrTimeout)
}

// BackendError represents local inference backend errors
type BackendError struct {
	Op  string // operation being performed
	Err error  // underlying error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// ConfigError represents fatal startup configuration errors
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewRemoteError creates a new remote error
func NewRemoteError(op string, status int, err error) error {
	return &RemoteError{Op: op, Status: status, Err: err}
}

// NewBackendError creates a new backend error
func NewBackendError(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}

// NewConfigError creates a new config error
func NewConfigError(field string, err error) error {
	return &ConfigError{Field: field, Err: errors.Join(ErrInvalidConfig, err)}
}

// IsAuth checks if an error is an authentication failure
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTemporary checks if an error is temporary and retryable
func IsTemporary(err error) bool {
	if IsAuth(err) {
		return false
	}

	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}

	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrBackendDown)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return errors.Is(err, ErrTimeout)
}

// IsBackendDown checks if an error means the local backend is unreachable
func IsBackendDown(err error) bool {
	return errors.Is(err, ErrBackendDown)
}
