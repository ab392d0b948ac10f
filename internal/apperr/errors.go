// Package apperr holds the error kinds shared across the chore tracker.
package apperr

import "errors"

var (
	// ErrConfiguration is fatal: missing credentials or collaborators.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks an absent household or week document.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition is returned when completion is requested without proof.
	ErrPrecondition = errors.New("precondition failed")
	// ErrStorage wraps document or blob store failures.
	ErrStorage = errors.New("storage error")
	// ErrSend wraps mail delivery failures.
	ErrSend = errors.New("send error")
	// ErrNoRecipient means no notification address could be resolved.
	ErrNoRecipient = errors.New("no recipient configured")
	// ErrInvalid marks malformed caller input.
	ErrInvalid = errors.New("invalid input")
)

// OpError ties an error kind to the operation that failed and its cause.
// errors.Is matches both the kind and anything in the cause chain.
type OpError struct {
	Kind error
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Storage wraps err as a storage failure of op.
func Storage(op string, err error) error {
	return &OpError{Kind: ErrStorage, Op: op, Err: err}
}

// Send wraps err as a mail delivery failure of op.
func Send(op string, err error) error {
	return &OpError{Kind: ErrSend, Op: op, Err: err}
}

// Configuration wraps err as a fatal configuration failure.
func Configuration(op string, err error) error {
	return &OpError{Kind: ErrConfiguration, Op: op, Err: err}
}
