package auth

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an operation needs a token and
// none has been obtained yet.
var ErrNotAuthenticated = errors.New("no authentication token found, please authenticate first")

// ExchangeKind classifies why a code exchange failed.
type ExchangeKind int

const (
	// ExchangeNetwork means the provider could not be reached.
	ExchangeNetwork ExchangeKind = iota

	// ExchangeInvalidCode means the provider rejected the code
	// (expired, reused, or malformed).
	ExchangeInvalidCode

	// ExchangeRedirectMismatch means the redirect URI sent with the
	// exchange did not byte-match the one used to request consent.
	ExchangeRedirectMismatch
)

func (k ExchangeKind) String() string {
	switch k {
	case ExchangeInvalidCode:
		return "invalid code"
	case ExchangeRedirectMismatch:
		return "redirect mismatch"
	default:
		return "network"
	}
}

// ExchangeError reports a failed authorization-code exchange with the
// cause classified for the caller.
type ExchangeError struct {
	Kind ExchangeKind
	Err  error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("code exchange failed (%s): %v", e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsRedirectMismatch reports whether err is an exchange failure caused
// by a redirect URI mismatch.
func IsRedirectMismatch(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Kind == ExchangeRedirectMismatch
}
