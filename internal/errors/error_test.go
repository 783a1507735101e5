package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError_Error(t *testing.T) {
	// Test error without cause
	err := New(ErrorTypeShape, "reorder", "batch size mismatch")
	assert.Equal(t, "[shape] reorder: batch size mismatch", err.Error())

	// Test error with cause
	cause := errors.New("kernel aborted")
	err = Wrap(cause, ErrorTypeDevice, "hashgrid_order", "launch failed")
	assert.Contains(t, err.Error(), "[device] hashgrid_order: launch failed")
	assert.Contains(t, err.Error(), "kernel aborted")
	assert.Equal(t, cause, err.Unwrap())
}

func TestStructuredError_WithContext(t *testing.T) {
	err := New(ErrorTypeShape, "find_neighbors", "dim mismatch")
	err = err.WithContext("expected", 3).WithContext("argument", "qlocs")

	assert.Equal(t, 3, err.Context["expected"])
	assert.Equal(t, "qlocs", err.Context["argument"])
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrorTypeShape, NewShapeError("op", "msg").Type)
	assert.Equal(t, ErrorTypeConfiguration, NewConfigurationError("op", "msg").Type)
	assert.Equal(t, ErrorTypeCapacity, NewCapacityError("op", "msg").Type)
}

func TestErrorWrapping(t *testing.T) {
	originalErr := errors.New("original error")

	wrapped := WrapDeviceError(originalErr, "reorder", "kernel failed")
	assert.Equal(t, ErrorTypeDevice, wrapped.Type)
	assert.Equal(t, "reorder", wrapped.Operation)
	assert.Equal(t, "kernel failed", wrapped.Message)
	assert.Equal(t, originalErr, wrapped.Unwrap())

	// Test that Wrap returns nil for nil error
	assert.Nil(t, Wrap(nil, ErrorTypeDevice, "op", "msg"))
	assert.Nil(t, WrapConfigurationError(nil, "op", "msg"))
}

func TestIsType(t *testing.T) {
	shape := NewShapeError("reorder", "mismatch")
	assert.True(t, IsType(shape, ErrorTypeShape))
	assert.False(t, IsType(shape, ErrorTypeDevice))

	// Through fmt wrapping
	assert.True(t, IsType(fmt.Errorf("forward: %w", shape), ErrorTypeShape))

	// Nested structured errors
	nested := WrapConfigurationError(WrapDeviceError(errors.New("no device"), "open", "open device"), "engine", "backend")
	assert.True(t, IsType(nested, ErrorTypeConfiguration))
	assert.True(t, IsType(nested, ErrorTypeDevice))

	assert.False(t, IsType(errors.New("plain"), ErrorTypeShape))
	assert.False(t, IsType(nil, ErrorTypeShape))
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "shape", string(ErrorTypeShape))
	assert.Equal(t, "configuration", string(ErrorTypeConfiguration))
	assert.Equal(t, "capacity", string(ErrorTypeCapacity))
	assert.Equal(t, "device", string(ErrorTypeDevice))
}

func TestStackTraceCapture(t *testing.T) {
	err := New(ErrorTypeShape, "test", "message")
	// Should have captured some stack frames
	assert.Greater(t, len(err.Stack), 0)
}
