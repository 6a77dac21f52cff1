// Package faults implements the orchestrator's error taxonomy (spec §7): a
// small, closed set of kinds that callers switch on to decide retry and
// surface policy, modeled on the structured provider-error pattern used
// throughout the teacher's model package.
package faults

import "fmt"

// Kind classifies a failure into one of the categories named in spec §7.
type Kind string

const (
	// KindBadInput marks a validation failure. Never retried.
	KindBadInput Kind = "bad_input"
	// KindUnauthorized marks an identity/authorization failure. Never retried.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound marks a missing entity. Never retried.
	KindNotFound Kind = "not_found"
	// KindTimeout marks a bounded-retry timeout at the call site.
	KindTimeout Kind = "timeout"
	// KindLLMError marks a model provider failure; transient instances are
	// retried with backoff, persistent ones surface.
	KindLLMError Kind = "llm_error"
	// KindStoreError marks a retrieval backend failure; retried once, then surfaced.
	KindStoreError Kind = "store_error"
	// KindCapacityExhausted marks a full queue; surfaced immediately.
	KindCapacityExhausted Kind = "capacity_exhausted"
	// KindInterrupted marks a terminal cancellation. Never retried.
	KindInterrupted Kind = "interrupted"
	// KindInternal marks a bug-class failure, logged with a stack and
	// surfaced as a generic failure.
	KindInternal Kind = "internal"
)

// Fault is the orchestrator's single error type. It never leaks a raw stack
// trace to clients; Detail carries only operator-safe context.
type Fault struct {
	kind    Kind
	message string
	detail  string
	cause   error
}

// New constructs a Fault. kind and message are required.
func New(kind Kind, message string) *Fault {
	return &Fault{kind: kind, message: message}
}

// Wrap constructs a Fault that preserves cause in its error chain.
func Wrap(kind Kind, message string, cause error) *Fault {
	return &Fault{kind: kind, message: message, cause: cause}
}

// WithDetail returns a copy of f with detail attached.
func (f *Fault) WithDetail(detail string) *Fault {
	cp := *f
	cp.detail = detail
	return &cp
}

// Kind returns the fault's classification.
func (f *Fault) Kind() Kind { return f.kind }

// Detail returns operator-safe additional context, if any.
func (f *Fault) Detail() string { return f.detail }

// Retryable reports whether the scheduler or call site may retry the
// operation that produced this fault, per the policy in spec §7.
func (f *Fault) Retryable() bool {
	switch f.kind {
	case KindLLMError, KindStoreError, KindTimeout:
		return true
	default:
		return false
	}
}

func (f *Fault) Error() string {
	msg := f.message
	if msg == "" && f.cause != nil {
		msg = f.cause.Error()
	}
	if f.detail != "" {
		return fmt.Sprintf("%s: %s (%s)", f.kind, msg, f.detail)
	}
	return fmt.Sprintf("%s: %s", f.kind, msg)
}

// Unwrap returns the underlying cause, if any.
func (f *Fault) Unwrap() error { return f.cause }

// As returns the first *Fault in err's chain, if any.
func As(err error) (*Fault, bool) {
	for err != nil {
		if f, ok := err.(*Fault); ok {
			return f, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
