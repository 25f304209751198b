// Package errs defines the domain error taxonomy shared by every
// CipherSwarm scheduling component, so that transport-layer controllers
// (pkg/controller) can map one error shape to response codes without
// reaching into component internals.
package errs

import "fmt"

// Kind classifies a DomainError for dispatch by callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindGuessNotFound
	KindDeviceStatusesNotFound
	KindTaskNotAssigned
	KindTaskDeleted
	KindTaskInvalid
	KindPerformanceThreshold
	KindStale
	KindPaused
	KindPreempt
	KindVersionConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindGuessNotFound:
		return "guess_not_found"
	case KindDeviceStatusesNotFound:
		return "device_statuses_not_found"
	case KindTaskNotAssigned:
		return "task_not_assigned"
	case KindTaskDeleted:
		return "task_deleted"
	case KindTaskInvalid:
		return "task_invalid"
	case KindPerformanceThreshold:
		return "performance_threshold"
	case KindStale:
		return "stale"
	case KindPaused:
		return "paused"
	case KindPreempt:
		return "preempt"
	case KindVersionConflict:
		return "version_conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// DomainError wraps an error with a Kind so that callers can branch on
// failure category without string matching.
type DomainError struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) *DomainError {
	return &DomainError{kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, err error) *DomainError {
	return &DomainError{kind: kind, msg: msg, err: err}
}

func (e *DomainError) Kind() Kind { return e.kind }

func (e *DomainError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *DomainError) Unwrap() error { return e.err }

// Is reports whether err is a *DomainError of the given kind.
func Is(err error, kind Kind) bool {
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	return de.kind == kind
}

func NotFound(what string) *DomainError {
	return New(KindNotFound, what+" not found")
}

func TaskInvalid(why string) *DomainError {
	return New(KindTaskInvalid, why)
}

func VersionConflict(what string) *DomainError {
	return New(KindVersionConflict, what+": version conflict")
}

func Internal(msg string, err error) *DomainError {
	return Wrap(KindInternal, msg, err)
}
