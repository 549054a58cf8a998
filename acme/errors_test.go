package acme

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/smallstep/assert"
)

func TestNewError(t *testing.T) {
	err := NewError(ErrorRecordNotFoundType, "account %s not found", "alice")
	assert.Equals(t, err.Type, ErrorRecordNotFoundType)
	assert.Equals(t, err.Error(), "account alice not found")
	assert.True(t, err.IsType(ErrorRecordNotFoundType))
	assert.False(t, err.IsType(ErrorTimeoutType))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(ErrorStoreUnavailableType, nil, "ignored"))

	cause := errors.New("force")
	err := WrapError(ErrorStoreUnavailableType, cause, "error saving acme %s", "order")
	assert.Equals(t, err.Type, ErrorStoreUnavailableType)
	assert.Equals(t, err.Error(), "error saving acme order: force")
	assert.Equals(t, errors.Cause(err.Cause()), cause)

	// Wrapping an *Error keeps its original type.
	outer := WrapError(ErrorStoreUnavailableType, err, "lookup failed")
	assert.Equals(t, outer.Type, ErrorStoreUnavailableType)
	assert.HasPrefix(t, outer.Error(), "lookup failed: ")

	inner := NewError(ErrorDanglingReferenceType, "dangling")
	wrapped := WrapError(ErrorStoreUnavailableType, inner, "order add failed")
	assert.Equals(t, wrapped.Type, ErrorDanglingReferenceType)
}

func TestIsErrorType(t *testing.T) {
	err := NewError(ErrorUnknownStatusType, "unknown status %q", "sideways")
	assert.True(t, IsErrorType(err, ErrorUnknownStatusType))
	assert.False(t, IsErrorType(err, ErrorRecordNotFoundType))
	assert.False(t, IsErrorType(nil, ErrorUnknownStatusType))
	assert.False(t, IsErrorType(errors.New("plain"), ErrorUnknownStatusType))

	// Detection survives further wrapping.
	wrapped := errors.Wrap(err, "outer context")
	assert.True(t, IsErrorType(wrapped, ErrorUnknownStatusType))
}

func TestErrorType_String(t *testing.T) {
	assert.Equals(t, ErrorUnknownStatusType.String(), "unknownStatus")
	assert.Equals(t, ErrorDanglingReferenceType.String(), "danglingReference")
	assert.Equals(t, ErrorRecordNotFoundType.String(), "recordNotFound")
	assert.Equals(t, ErrorStoreUnavailableType.String(), "storeUnavailable")
	assert.Equals(t, ErrorTimeoutType.String(), "timeout")
	assert.Equals(t, ErrorSchemaMismatchType.String(), "schemaMismatch")
	assert.Equals(t, ErrorType(100).String(), "unsupported type")
}
