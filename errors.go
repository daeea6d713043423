package orabridge

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/semihalev/go-orabridge/nca"
)

// ErrorType classifies orabridge errors.
type ErrorType int

const (
	// ErrNative is a failure reported by the native client library.
	ErrNative ErrorType = iota
	// ErrBuffer is the insufficient-buffer condition for OUT binds.
	ErrBuffer
	// ErrUsage is a caller mistake detected before any native call.
	ErrUsage
	// ErrScheduling is a failure to queue or run a task.
	ErrScheduling
)

func (t ErrorType) String() string {
	switch t {
	case ErrNative:
		return "native"
	case ErrBuffer:
		return "buffer"
	case ErrUsage:
		return "usage"
	case ErrScheduling:
		return "scheduling"
	}
	return "unknown"
}

// Error is an orabridge error. Native errors carry the ORA code, parse
// offset and recoverability reported by the client library; usage errors
// carry their NJS number in Code.
type Error struct {
	Type        ErrorType
	Message     string
	Code        int
	Offset      uint32
	Recoverable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("orabridge: %s", e.Message)
}

// Is matches errors of the same type and code. Errors without a code also
// compare messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type || e.Code != t.Code {
		return false
	}
	return e.Code != 0 || e.Message == t.Message
}

// NewError creates a new Error.
func NewError(typ ErrorType, message string) *Error {
	return &Error{
		Type:    typ,
		Message: message,
	}
}

// IsError checks if an error is of a specific type.
func IsError(err error, typ ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == typ
}

// usageError builds an NJS-numbered usage error.
func usageError(code int, format string, args ...any) *Error {
	return &Error{
		Type:    ErrUsage,
		Code:    code,
		Message: fmt.Sprintf("NJS-%03d: ", code) + fmt.Sprintf(format, args...),
	}
}

// usagef builds a usage error without an NJS number.
func usagef(format string, args ...any) *Error {
	return &Error{Type: ErrUsage, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors, comparable with errors.Is.
var (
	ErrInvalidConnection          = usageError(3, "invalid connection")
	ErrInvalidResultSet           = usageError(18, "invalid ResultSet")
	ErrBusyResultSet              = usageError(17, "concurrent operations on ResultSet are not allowed")
	ErrInvalidLob                 = usageError(22, "invalid Lob")
	ErrBusyLob                    = usageError(23, "concurrent operations on LOB are not allowed")
	ErrBusyConnection             = usageError(81, "concurrent operations on a connection are not allowed")
	ErrMixedBind                  = usageError(55, "binding by position and name cannot be mixed")
	ErrInsufficientBufferForBinds = &Error{Type: ErrBuffer, Code: 16, Message: "NJS-016: buffer is too small for OUT binds"}
	ErrSchedulerClosed            = &Error{Type: ErrScheduling, Message: "scheduler is closed"}
	ErrInvalidHandle              = &Error{Type: ErrUsage, Message: "stale or released native handle"}
	ErrLastInsertID               = &Error{Type: ErrUsage, Message: "LastInsertId is not supported, use Result.LastRowid"}
)

func errUnsupportedType(dbType nca.DBType, col int) *Error {
	return usageError(10, "unsupported data type %d in column %d", dbType, col)
}

// nativeError converts an adapter failure into an *Error.
func nativeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	ne, ok := nca.AsError(err)
	if !ok {
		return &Error{Type: ErrNative, Message: err.Error()}
	}
	return &Error{
		Type:        ErrNative,
		Code:        ne.Code,
		Message:     ne.Message,
		Offset:      ne.Offset,
		Recoverable: ne.Recoverable,
	}
}

// wrapf annotates a native failure with the failing step.
func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(nativeError(err), format, args...)
}
