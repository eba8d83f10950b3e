package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Application error codes. The web layer maps each code to a response:
// EINVALID re-renders the submitted form, ENOTFOUND shows the not-found page,
// EUNAUTHORIZED redirects to the login page and EFORBIDDEN redirects to the
// read view of the resource.
const (
	EINVALID      = "invalid"
	ENOTFOUND     = "not_found"
	EUNAUTHORIZED = "unauthorized"
	EFORBIDDEN    = "forbidden"
	ECONFLICT     = "conflict"
	EINTERNAL     = "internal"
)

// Messages shared by several validators.
const (
	FieldRequired = "This field is required."
	LoginRequired = "You need to sign in first."
)

// Error represents an application-specific error. Fields holds per-field
// messages for validation errors, keyed by form field name.
type Error struct {
	Code    string
	Message string
	Fields  map[string]string
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("error: code=%s message=%s", e.Code, e.Message)
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// FieldError returns an EINVALID error scoped to a single form field.
func FieldError(field, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Message: message,
		Fields:  map[string]string{field: message},
	}
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error."
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// ErrorFields unwraps an application error and returns its field messages, if any.
func ErrorFields(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Is reports whether err carries the given application error code.
func Is(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
