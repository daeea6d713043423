package nca

import (
	"errors"
	"fmt"
)

// Oracle error numbers the bridge inspects.
const (
	CodeValueTooLarge   = 1406
	CodeUserCancelled   = 1013
	CodeNoData          = 1403
	CodeNotConnected    = 3114
	CodeEndOfFile       = 3113
	CodeSessionKilled   = 28
	CodeInvalidHandle   = -2
	CodeUnsupportedType = 24323
)

// Error is a failure reported by the native client library.
type Error struct {
	Code        int
	Message     string
	Offset      uint32
	Recoverable bool
	Func        string
}

// Error returns the message, prefixed by the failing call when known.
func (e *Error) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Message)
	}
	return e.Message
}

// NewError builds an Error with an ORA-style message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf("ORA-%05d: ", code) + fmt.Sprintf(format, args...),
	}
}

// ErrNotSupported is returned by adapters for calls they cannot serve.
var ErrNotSupported = errors.New("nca: operation not supported by adapter")

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err is a native error with the given code.
func IsCode(err error, code int) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
