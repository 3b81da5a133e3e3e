package shared

import (
	"errors"
	"fmt"
)

// FaultKind classifies a failure for the request pipeline. The set is closed:
// every error maps to exactly one kind, and anything not explicitly classified
// is FaultUnhandled.
type FaultKind int

const (
	// FaultUnhandled is an unexpected failure. Only the failure boundary deals with it.
	FaultUnhandled FaultKind = iota
	// FaultDenied is a quota denial. The caller may wait or upgrade.
	FaultDenied
	// FaultTransient is storage contention (resource temporarily locked). Retried by the committer.
	FaultTransient
	// FaultPermanent is a bad mutation or input. Returned to the caller, never retried.
	FaultPermanent
	// FaultExhausted means the committer ran out of attempts on transient failures.
	FaultExhausted
)

// String returns the classification label used in logs and failure records.
func (k FaultKind) String() string {
	switch k {
	case FaultDenied:
		return "denied"
	case FaultTransient:
		return "transient"
	case FaultPermanent:
		return "permanent"
	case FaultExhausted:
		return "commit_exhausted"
	default:
		return "unhandled"
	}
}

// classified is implemented by errors that know their own kind.
type classified interface {
	FaultKind() FaultKind
}

// Fault wraps an error with an explicit classification.
type Fault struct {
	Kind     FaultKind
	Attempts int
	Err      error
}

// Error implements the error interface
func (f *Fault) Error() string {
	switch {
	case f.Kind == FaultExhausted:
		return fmt.Sprintf("max retries exceeded after %d attempts: %v", f.Attempts, f.Err)
	case f.Err == nil:
		return f.Kind.String()
	default:
		return f.Kind.String() + ": " + f.Err.Error()
	}
}

// Unwrap returns the underlying error
func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultKind implements classified
func (f *Fault) FaultKind() FaultKind {
	return f.Kind
}

// Transient marks err as retryable storage contention.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: FaultTransient, Err: err}
}

// Permanent marks err as a non-retryable failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: FaultPermanent, Err: err}
}

// Exhausted reports that attempts transient failures in a row used up the retry budget.
func Exhausted(attempts int, last error) error {
	return &Fault{Kind: FaultExhausted, Attempts: attempts, Err: last}
}

// KindOf returns the classification of err. The outermost classified error
// in the chain wins; a nil error has no kind and reports FaultUnhandled.
func KindOf(err error) FaultKind {
	var c classified
	if errors.As(err, &c) {
		return c.FaultKind()
	}
	return FaultUnhandled
}

// IsTransient reports whether err is classified as retryable contention.
func IsTransient(err error) bool {
	return KindOf(err) == FaultTransient
}
