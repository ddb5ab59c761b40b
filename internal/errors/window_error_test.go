package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowErrorFormatting(t *testing.T) {
	withDetail := NewUnsupportedAggregateError("BuildDescriptor", "AVG")
	assert.Equal(t,
		`BuildDescriptor failed on "AVG": unsupported window aggregate, only COUNT, SUM, MIN and MAX are available`,
		withDetail.Error())

	withoutDetail := NewInvalidFrameError("BuildDescriptor", "lower bound 1 starts after the current row")
	assert.Equal(t,
		"BuildDescriptor failed: lower bound 1 starts after the current row",
		withoutDetail.Error())
}

func TestWindowErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("out of device memory")
	err := NewResourceError("Evaluate", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestWindowErrorIs(t *testing.T) {
	a := NewUnsupportedBoundaryError("ResolveBoundary", "25h0m0s")
	b := NewUnsupportedBoundaryError("ResolveBoundary", "25h0m0s")
	c := NewUnsupportedBoundaryError("ResolveBoundary", "90m0s")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		configuration bool
		resource      bool
		planShape     bool
	}{
		{
			name:          "unsupported boundary",
			err:           NewUnsupportedBoundaryError("ResolveBoundary", "x"),
			configuration: true,
		},
		{
			name:          "unsupported aggregate",
			err:           NewUnsupportedAggregateError("BuildDescriptor", "AVG"),
			configuration: true,
		},
		{
			name:          "invalid frame",
			err:           NewInvalidFrameError("BuildDescriptor", "bad bounds"),
			configuration: true,
		},
		{
			name:          "multi-column range",
			err:           NewMultiColumnRangeError("ValidatePlan[0]", 2),
			configuration: true,
		},
		{
			name:          "column index",
			err:           NewColumnIndexError("ValidatePlan[0]", 9, 3),
			configuration: true,
		},
		{
			name:     "resource",
			err:      NewResourceError("Evaluate", fmt.Errorf("boom")),
			resource: true,
		},
		{
			name:      "plan shape",
			err:       NewPlanShapeError("NewEvaluator", "unsupported shape"),
			planShape: true,
		},
		{
			name: "plain error matches no kind",
			err:  fmt.Errorf("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.configuration, IsConfiguration(tt.err))
			assert.Equal(t, tt.resource, IsResource(tt.err))
			assert.Equal(t, tt.planShape, IsPlanShape(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "resource", KindResource.String())
	assert.Equal(t, "plan-shape", KindPlanShape.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
