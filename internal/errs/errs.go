// Package errs defines the error taxonomy shared by every component of the
// query/update pipeline. Components never invent ad-hoc error strings for
// control-flow decisions; they wrap a Kind so callers can branch on
// errors.Is against the sentinel values below.
package errs

import "errors"

// Kind classifies why an operation failed, independent of the component
// that failed. The scheduler, alert engine and message refresher branch on
// Kind rather than on a specific error type.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// NotFound covers repository lookup misses and directory lookup misses.
	NotFound
	// InvalidInput covers unknown games, malformed ports and malformed config.
	InvalidInput
	// Timeout covers a strategy or edit exceeding its budget.
	Timeout
	// Transport covers network/DNS/HTTP-status failures.
	Transport
	// Protocol covers response parse/validation errors.
	Protocol
	// Permission covers chat-platform forbidden responses.
	Permission
	// Conflict covers a duplicate add in a channel.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case Timeout:
		return "timeout"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Permission:
		return "permission"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error with an optional wrapped cause.
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

// Is lets errors.Is(err, errs.NotFound) work by comparing Kind sentinels
// constructed with New(kind, "", nil).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New builds a Kind-tagged error.
func New(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinels usable with errors.Is(err, errs.ErrNotFound).
var (
	ErrNotFound     = &Error{Kind: NotFound, Message: "not found"}
	ErrInvalidInput = &Error{Kind: InvalidInput, Message: "invalid input"}
	ErrTimeout      = &Error{Kind: Timeout, Message: "timeout"}
	ErrTransport    = &Error{Kind: Transport, Message: "transport error"}
	ErrProtocol     = &Error{Kind: Protocol, Message: "protocol error"}
	ErrPermission   = &Error{Kind: Permission, Message: "permission denied"}
	ErrConflict     = &Error{Kind: Conflict, Message: "conflict"}
)

// Of extracts the Kind of err, or Unknown if err doesn't carry one.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
