package mailerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrRefreshFailed, "Unable to refresh access token.", cause)

	if !errors.Is(err, ErrRefreshFailed) {
		t.Error("expected errors.Is(err, ErrRefreshFailed)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrCrypto) {
		t.Error("did not expect errors.Is(err, ErrCrypto)")
	}

	wrapped := fmt.Errorf("account a: %w", err)
	if !errors.Is(wrapped, ErrRefreshFailed) {
		t.Error("expected kind to survive fmt wrapping")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message only", New(ErrInvalidEmail, "Contact email is invalid."), "Contact email is invalid."},
		{"kind fallback", New(ErrNotAuthorized, ""), "not authorized"},
		{"with cause", Wrap(ErrCrypto, "decrypt failed", errors.New("bad iv")), "decrypt failed: bad iv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrMissingRefreshToken, "Missing refresh token."))
	if got := Message(err, "fallback"); got != "Missing refresh token." {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(errors.New("plain"), "fallback"); got != "fallback" {
		t.Errorf("Message() = %q, want fallback", got)
	}
}
