package domain

import "fmt"

// Kind discriminates the typed errors every public operation documents.
type Kind string

const (
	KindQueueFull           Kind = "QueueFull"
	KindDuplicate           Kind = "Duplicate"
	KindNotFound            Kind = "NotFound"
	KindInvalidTransition   Kind = "InvalidTransition"
	KindNotRunning          Kind = "NotRunning"
	KindAlreadyRunning      Kind = "AlreadyRunning"
	KindCapabilityMismatch  Kind = "CapabilityMismatch"
	KindTimeout             Kind = "Timeout"
	KindCancelled           Kind = "Cancelled"
	KindBackpressureDropped Kind = "BackpressureDropped"
	KindInternal            Kind = "Internal"
)

// Error is the typed error every component returns so callers can
// discriminate on Kind rather than parsing strings.
type Error struct {
	Kind    Kind
	Op      string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// New builds an *Error for op failing with kind, optionally formatted.
func New(op string, kind Kind, format string, args ...interface{}) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Message: msg}
}

// KindOf extracts the Kind from err, or KindInternal if err is not one of
// ours (or is nil, for which it returns "").
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
