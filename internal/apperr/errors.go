package apperr

import (
	"errors"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Ids and values involved
	Cause    error             // Wrapped underlying error
}

// Sentinels for errors.Is matching by code.
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "record not found"}
	ErrNotMember          = &Error{Code: CodeNotMember, Message: "membership not found"}
	ErrAlreadyMember      = &Error{Code: CodeAlreadyMember, Message: "membership already exists"}
	ErrNotAMember         = &Error{Code: CodeNotAMember, Message: "owner is not a member of the attributed group"}
	ErrGroupLocked        = &Error{Code: CodeGroupLocked, Message: "group cannot be left"}
	ErrInvalidAttribution = &Error{Code: CodeInvalidAttribution, Message: "invalid attribution"}
	ErrInvalidTime        = &Error{Code: CodeInvalidTime, Message: "invalid time value"}
	ErrInvalidDate        = &Error{Code: CodeInvalidDate, Message: "invalid date"}
	ErrInvalidDescription = &Error{Code: CodeInvalidDescription, Message: "invalid description"}
	ErrInvalidStatus      = &Error{Code: CodeInvalidStatus, Message: "invalid status"}
	ErrInvalidGroupName   = &Error{Code: CodeInvalidGroupName, Message: "invalid group name"}
	ErrGroupNameTaken     = &Error{Code: CodeGroupNameTaken, Message: "group name already in use"}
	ErrInvalidEnrollment  = &Error{Code: CodeInvalidEnrollment, Message: "invalid enrollment batch"}
	ErrUntrackedTotal     = &Error{Code: CodeUntrackedTotal, Message: "total is not tracked"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error carrying the ids involved.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf extracts the code from the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
