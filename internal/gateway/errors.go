package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by operations that need a stored
	// session token when none is held.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenNotFound is wrapped by the AuthenticationError returned when a
	// login response carries no recognizable token.
	ErrTokenNotFound      = errors.New("token not found in response")
	ErrMissingCredentials = errors.New("nisn and password are required")
	ErrEmptyTokenCode     = errors.New("token code must not be empty")
	// ErrTokenRejected is returned by Profile when the service refuses the
	// token it was given.
	ErrTokenRejected = errors.New("token rejected by the service")
)

// An AuthenticationError is a failed login: either the service rejected the
// credentials or its response had no token.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "login failed"
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// A RedemptionError is the service refusing an attendance code.
type RedemptionError struct {
	StatusCode int
	Message    string
}

func (e *RedemptionError) Error() string {
	return e.Message
}

// A NetworkError is a transport failure; its message is the transport's.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// An APIError is a non-2xx or unreadable answer from one of the
// collaborator endpoints.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}
