// Package errs defines the error-kind taxonomy used across the core
// pipeline so that callers can branch on kind rather than on message text.
package errs

import "github.com/pkg/errors"

// Kind identifies the class of failure a core component raised.
type Kind string

const (
	ConfigMissing    Kind = "ConfigMissing"
	DataFetchError   Kind = "DataFetchError"
	CacheCorrupt     Kind = "CacheCorrupt"
	WebhookTransient Kind = "WebhookTransient"
	WebhookPermanent Kind = "WebhookPermanent"
	NoWebhook        Kind = "NoWebhook"
	BusinessLogicErr Kind = "BusinessLogicError"
	Cancelled        Kind = "Cancelled"
)

// KindError pairs a taxonomy Kind with the underlying cause.
type KindError struct {
	Kind Kind
	msg  string
	err  error
}

func (e *KindError) Error() string {
	if e.err != nil {
		return string(e.Kind) + ": " + e.msg + ": " + e.err.Error()
	}
	return string(e.Kind) + ": " + e.msg
}

func (e *KindError) Unwrap() error { return e.err }

// New builds a KindError with no wrapped cause.
func New(kind Kind, msg string) error {
	return &KindError{Kind: kind, msg: msg}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return New(kind, msg)
	}
	return &KindError{Kind: kind, msg: msg, err: errors.WithMessage(cause, msg)}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if k, ok := err.(*KindError); ok && k.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf extracts the Kind of err, returning ok=false if err carries none.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if k, ok := err.(*KindError); ok {
			return k.Kind, true
		}
		err = errors.Unwrap(err)
	}
	return "", false
}
