package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockTimeout   = errors.New("lock wait cancelled")
)

// Trade and risk error kinds. Callers match them with errors.Is; the wrapping
// *Error carries the human-readable reason.
var (
	ErrValidation           = errors.New("validation error")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrAccountNotFound      = errors.New("account not found")
	ErrPersistence          = errors.New("persistence error")
)

// Error is a classified failure returned by the core services.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error of the given kind.
func NewError(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError builds an *Error of the given kind around cause.
func WrapError(kind error, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

var errorKinds = []struct {
	err  error
	code string
}{
	{ErrValidation, "VALIDATION_ERROR"},
	{ErrPriceUnavailable, "PRICE_UNAVAILABLE"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientHoldings, "INSUFFICIENT_HOLDINGS"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrPersistence, "PERSISTENCE_ERROR"},
	{ErrAlreadyExists, "ALREADY_EXISTS"},
	{ErrLockTimeout, "LOCK_TIMEOUT"},
}

// KindOf returns the stable code for a classified error, or "INTERNAL" for
// anything else.
func KindOf(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "INTERNAL"
}

// ReasonOf returns the reason of the outermost *Error in err's chain, falling
// back to the error text.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
