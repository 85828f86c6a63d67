package oauth

import (
	"errors"
	"fmt"
)

// ErrInvalidEncoding is returned by FormatUserID for an unknown encoding.
var ErrInvalidEncoding = errors.New("invalid user id encoding")

// ErrorType represents the stage of the login flow that failed
type ErrorType int

const (
	// ErrTypeRedirect indicates the redirect URL carried no usable code
	ErrTypeRedirect ErrorType = iota
	// ErrTypeToken indicates the code could not be exchanged for a token
	ErrTypeToken
	// ErrTypeAccount indicates the account lookup failed
	ErrTypeAccount
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeRedirect:
		return "Redirect Error"
	case ErrTypeToken:
		return "Token Error"
	case ErrTypeAccount:
		return "Account Error"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// AuthError represents a failure in the PSN login flow
type AuthError struct {
	Type       ErrorType // Stage that failed
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Err        error     // Underlying error (if any)
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an AuthError of type t.
func IsAuthError(err error, t ErrorType) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Type == t
}
