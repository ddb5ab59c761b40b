// Package errors provides standardized error types for window operator
// evaluation. It defines WindowError for consistent error handling across
// the public API, with operation context, error-kind classification, and
// error wrapping support.
package errors

import (
	"fmt"
)

// Kind classifies a WindowError so callers can decide between aborting the
// query, falling back to another execution path, or surfacing the failure.
type Kind int

const (
	// KindConfiguration marks unsupported window constructs: boundary
	// shapes, aggregate kinds, bound signs, multi-column range sort keys.
	// Fatal for the query; never retried.
	KindConfiguration Kind = iota
	// KindResource marks native allocation or aggregation failures.
	// Fatal for the batch sequence; intermediates are still released.
	KindResource
	// KindPlanShape marks expression shapes this operator does not accept.
	// Detected before execution so the caller can fall back.
	KindPlanShape
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindPlanShape:
		return "plan-shape"
	default:
		return "unknown"
	}
}

// WindowError represents standardized errors across window operator evaluation
type WindowError struct {
	Kind    Kind   // Error classification
	Op      string // Operation name (e.g., "ResolveBoundary", "Evaluate")
	Detail  string // The offending construct if applicable (e.g., "AVG", "RANGE")
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *WindowError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed on %q: %s", e.Op, e.Detail, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *WindowError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is()
func (e *WindowError) Is(target error) bool {
	if we, ok := target.(*WindowError); ok {
		return e.Kind == we.Kind && e.Op == we.Op && e.Detail == we.Detail && e.Message == we.Message
	}
	return false
}

// IsConfiguration reports whether err is a configuration WindowError.
func IsConfiguration(err error) bool {
	we, ok := err.(*WindowError)
	return ok && we.Kind == KindConfiguration
}

// IsResource reports whether err is a resource WindowError.
func IsResource(err error) bool {
	we, ok := err.(*WindowError)
	return ok && we.Kind == KindResource
}

// IsPlanShape reports whether err is a plan-shape WindowError.
func IsPlanShape(err error) bool {
	we, ok := err.(*WindowError)
	return ok && we.Kind == KindPlanShape
}

// Common error constructors for consistent error creation

// NewUnsupportedBoundaryError creates an error for frame boundary shapes
// the boundary resolver cannot translate
func NewUnsupportedBoundaryError(op, boundary string) *WindowError {
	return &WindowError{
		Kind:    KindConfiguration,
		Op:      op,
		Detail:  boundary,
		Message: "unsupported frame boundary",
	}
}

// NewUnsupportedAggregateError creates an error for aggregate kinds outside
// the supported set
func NewUnsupportedAggregateError(op, aggregate string) *WindowError {
	return &WindowError{
		Kind:    KindConfiguration,
		Op:      op,
		Detail:  aggregate,
		Message: "unsupported window aggregate, only COUNT, SUM, MIN and MAX are available",
	}
}

// NewInvalidFrameError creates an error for frames whose resolved bounds
// violate the lower <= 0 <= upper contract
func NewInvalidFrameError(op, message string) *WindowError {
	return &WindowError{
		Kind:    KindConfiguration,
		Op:      op,
		Message: message,
	}
}

// NewMultiColumnRangeError creates an error for range frames with more than
// one sort key
func NewMultiColumnRangeError(op string, sortKeys int) *WindowError {
	return &WindowError{
		Kind:    KindConfiguration,
		Op:      op,
		Message: fmt.Sprintf("range frames require exactly one sort key, got %d", sortKeys),
	}
}

// NewResourceError creates an error for native allocation or aggregation
// failures
func NewResourceError(op string, cause error) *WindowError {
	return &WindowError{
		Kind:    KindResource,
		Op:      op,
		Message: "native resource failure",
		Cause:   cause,
	}
}

// NewPlanShapeError creates an error for window expression shapes this
// operator does not accept, signalling the caller to fall back
func NewPlanShapeError(op, message string) *WindowError {
	return &WindowError{
		Kind:    KindPlanShape,
		Op:      op,
		Message: message,
	}
}

// NewColumnIndexError creates an error for bound column indices outside the
// declared input schema
func NewColumnIndexError(op string, index, width int) *WindowError {
	return &WindowError{
		Kind:    KindConfiguration,
		Op:      op,
		Message: fmt.Sprintf("column index %d out of range for input width %d", index, width),
	}
}
