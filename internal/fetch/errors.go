package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fetch failure so callers can degrade per failure
// mode instead of collapsing everything into one generic message.
type ErrorKind string

const (
	// KindUnavailable covers network failures and non-retryable provider
	// errors.
	KindUnavailable ErrorKind = "unavailable"
	// KindTimeout covers deadline and cancellation failures.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited covers provider throttling responses.
	KindRateLimited ErrorKind = "rate_limited"
	// KindMalformed covers responses that could not be parsed into a price
	// series.
	KindMalformed ErrorKind = "malformed"
	// KindInsufficient means the provider answered but returned fewer rows
	// than the volatility window requires.
	KindInsufficient ErrorKind = "insufficient"
)

// Error is the typed error returned from the data-fetch boundary.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or KindUnavailable when err is
// not a fetch error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnavailable
}

func newError(kind ErrorKind, symbol string, err error) *Error {
	return &Error{Kind: kind, Symbol: symbol, Err: err}
}
