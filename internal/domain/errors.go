package domain

import "errors"

// Kind is a coarse error category, used at the boundary between the core
// and its callers instead of exposing language-level error types. The HTTP
// surface (out of scope here) maps each Kind to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAlreadyExists
	KindConflict
	KindTransport
	KindSubprocess
	KindPipeline
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	case KindSubprocess:
		return "subprocess"
	case KindPipeline:
		return "pipeline"
	default:
		return "internal"
	}
}

// Error is a domain error carrying a Kind alongside the usual message/cause
// chain, so callers can branch with errors.As without parsing strings.
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

// NewError builds a Kind-tagged error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// errors that never went through NewError/Wrap.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Sentinel errors for the handful of conditions callers commonly want to
// match on directly with errors.Is, independent of the message text.
var (
	ErrNotFound       = NewError(KindNotFound, "not found")
	ErrAlreadyExists  = NewError(KindAlreadyExists, "already exists")
	ErrReadOnly       = NewError(KindConflict, "entity is read-only")
	ErrDefaultEntity  = NewError(KindConflict, "default entity cannot be modified")
	ErrNonEmptyGroup  = NewError(KindConflict, "group is not empty")
	ErrWorkerNotReady = NewError(KindSubprocess, "worker not ready")
	ErrTimeout        = NewError(KindTransport, "timeout")
)

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}
