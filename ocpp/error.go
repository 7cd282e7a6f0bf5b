package ocpp

import "fmt"

type ErrorCode string

const (
	// ErrorCodeFormat covers frames that decode to JSON but violate the
	// OCPP-J envelope or payload shape.
	ErrorCodeFormat ErrorCode = "MessageFormatError"
	// ErrorCodeNotImplemented covers syntactically valid calls carrying an
	// action the central system does not handle.
	ErrorCodeNotImplemented ErrorCode = "NotImplemented"
	ErrorCodeInternal       ErrorCode = "InternalError"
)

// Error is a protocol-level failure that must be answered with a CallError
// frame instead of crashing the connection handler.
type Error struct {
	Code        ErrorCode
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// AsError casts err to a protocol error, wrapping unknown errors as
// internal so a reply frame can always be produced.
func AsError(err error) *Error {
	if protoErr, ok := err.(*Error); ok {
		return protoErr
	}
	return &Error{Code: ErrorCodeInternal, Description: err.Error()}
}
