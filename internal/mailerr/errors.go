// Package mailerr defines the error taxonomy shared by the correspondence engine.
package mailerr

import "errors"

// Error kinds. Match with errors.Is.
var (
	ErrInvalidEmail        = errors.New("invalid email")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrRefreshFailed       = errors.New("refresh failed")
	ErrProviderAPI         = errors.New("provider api error")
	ErrCrypto              = errors.New("crypto error")
	ErrInvalidState        = errors.New("invalid oauth state")
)

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// New returns an Error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing message of err, or fallback when err does
// not carry one.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
