package apperr

import "errors"

// Kind classifies an error for callers and for the HTTP boundary.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindDecryption
	KindInvalidExternalAssertion
	KindConcurrencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindDecryption:
		return "decryption_failure"
	case KindInvalidExternalAssertion:
		return "invalid_external_assertion"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	default:
		return "internal"
	}
}

// Error is the application error carried across layers.
// Two errors are considered the same (errors.Is) when kind and message match,
// so a wrapped sentinel still matches the sentinel.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func NotFound(msg string) *Error                 { return New(KindNotFound, msg) }
func Validation(msg string) *Error               { return New(KindValidation, msg) }
func Decryption(msg string) *Error               { return New(KindDecryption, msg) }
func InvalidExternalAssertion(msg string) *Error { return New(KindInvalidExternalAssertion, msg) }
func ConcurrencyConflict(msg string) *Error      { return New(KindConcurrencyConflict, msg) }

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// Wrap attaches a cause to a copy of the sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Cause: cause}
}

// As extracts the *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Retryable is true for optimistic-lock conflicts only.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}
