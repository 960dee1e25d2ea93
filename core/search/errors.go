package search

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of failures the search layer reports.
// Everything else is recovered at the component boundary where it occurs.
type ErrorKind int

const (
	// KindTransientBackend covers store and embedding timeouts; idempotent
	// reads are retried once.
	KindTransientBackend ErrorKind = iota

	// KindNotFound covers unresolved node or domain identifiers.
	KindNotFound

	// KindDecisionTimeout covers a collaboration decision that did not
	// return in time; handled fail-open.
	KindDecisionTimeout

	// KindTotalFailure means every stage failed or no domain was reachable.
	// This is the only kind surfaced to callers, distinguishable from a
	// successful search with zero matches.
	KindTotalFailure
)

var kindNames = map[ErrorKind]string{
	KindTransientBackend: "transient_backend",
	KindNotFound:         "not_found",
	KindDecisionTimeout:  "decision_timeout",
	KindTotalFailure:     "total_failure",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error pairs an ErrorKind with its cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to KindTransientBackend
// for unclassified errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransientBackend
}

// ErrAllStagesFailed is the cause attached to a KindTotalFailure error when
// no hybrid-search stage produced anything.
var ErrAllStagesFailed = errors.New("all search stages failed")
