package acme

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType identifies the category of a storage error.
type ErrorType int

const (
	// ErrorUnknownStatusType is used when a status name is not part of the
	// registry vocabulary.
	ErrorUnknownStatusType ErrorType = iota
	// ErrorDanglingReferenceType is used when a record references a parent
	// entity that does not exist.
	ErrorDanglingReferenceType
	// ErrorRecordNotFoundType is used when an update addresses a record that
	// does not exist.
	ErrorRecordNotFoundType
	// ErrorStoreUnavailableType is used for backing-store connectivity or
	// query failures.
	ErrorStoreUnavailableType
	// ErrorTimeoutType is used when an operation's deadline expires before
	// any write was attempted.
	ErrorTimeoutType
	// ErrorSchemaMismatchType is used when the persisted schema version could
	// not be reconciled with the running code's version.
	ErrorSchemaMismatchType
)

// String returns the kind label used in logs and operator output.
func (t ErrorType) String() string {
	switch t {
	case ErrorUnknownStatusType:
		return "unknownStatus"
	case ErrorDanglingReferenceType:
		return "danglingReference"
	case ErrorRecordNotFoundType:
		return "recordNotFound"
	case ErrorStoreUnavailableType:
		return "storeUnavailable"
	case ErrorTimeoutType:
		return "timeout"
	case ErrorSchemaMismatchType:
		return "schemaMismatch"
	default:
		return "unsupported type"
	}
}

// Error is the storage error type: a closed kind plus a human-readable
// detail and an optional wrapped cause. Validation kinds (unknownStatus,
// danglingReference, recordNotFound) are detected before any write;
// storeUnavailable and timeout are transient and left to the caller to
// retry.
type Error struct {
	Type   ErrorType
	Detail string
	Err    error
}

// NewError returns a new Error with a formatted detail message.
func NewError(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:   t,
		Detail: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps err inside a new Error of the given type. A nil err
// returns nil. An err that is already an *Error keeps its original type and
// gains the additional context.
func WrapError(t ErrorType, err error, format string, args ...interface{}) *Error {
	var ee *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ee):
		if ee.Err == nil {
			ee.Err = errors.Errorf(format+"; "+ee.Detail, args...)
		} else {
			ee.Err = errors.Wrapf(ee.Err, format, args...)
		}
		return ee
	default:
		return &Error{
			Type:   t,
			Detail: fmt.Sprintf(format, args...),
			Err:    errors.Wrapf(err, format, args...),
		}
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Detail
	}
	return e.Err.Error()
}

// Cause returns the internal error and implements the Causer interface.
func (e *Error) Cause() error {
	if e.Err == nil {
		return errors.New(e.Detail)
	}
	return e.Err
}

// Unwrap returns the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether the error is of the given kind.
func (e *Error) IsType(t ErrorType) bool {
	return e.Type == t
}

// IsErrorType reports whether err is a storage *Error of the given kind
// anywhere in its chain.
func IsErrorType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}
