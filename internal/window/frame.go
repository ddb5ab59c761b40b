package window

import (
	"fmt"

	"github.com/paveg/velo/internal/errors"
	"github.com/paveg/velo/internal/expr"
	"github.com/paveg/velo/internal/native"
)

// BuildDescriptor translates a classified frame into the native aggregation
// descriptor. Bounds arrive resolved (see ResolveBoundary) and must satisfy
// lower <= 0 <= upper: frames starting strictly after the current row, or
// ending strictly before it, are rejected.
//
// The table the descriptor addresses is laid out as the grouping columns,
// then the order column (RANGE frames only), then the aggregation input.
//
// ROWS frames size the preceding window as (-lower)+1 because the device
// counts the current row inside the preceding span; RANGE frames measure
// order-key distance and take the magnitudes unadjusted. MinPeriods is
// pinned to 1: any frame holding at least one valid row produces a result.
func BuildDescriptor(
	frameType expr.FrameType,
	kind expr.AggregateKind,
	lower, upper int,
	groupingColumns int,
) (native.Descriptor, error) {
	const op = "BuildDescriptor"

	if lower > 0 {
		return native.Descriptor{}, errors.NewInvalidFrameError(op,
			fmt.Sprintf("lower bound %d starts after the current row", lower))
	}
	if upper < 0 {
		return native.Descriptor{}, errors.NewInvalidFrameError(op,
			fmt.Sprintf("upper bound %d ends before the current row", upper))
	}

	aggregation, err := mapAggregation(op, kind)
	if err != nil {
		return native.Descriptor{}, err
	}

	desc := native.Descriptor{
		Kind:       aggregation,
		MinPeriods: 1,
		Following:  upper,
	}

	switch frameType {
	case expr.FrameRows:
		desc.Preceding = -lower + 1
		desc.Column = groupingColumns
		desc.OrderColumn = -1
	case expr.FrameRange:
		desc.Preceding = -lower
		desc.OrderColumn = groupingColumns
		desc.Column = groupingColumns + 1
	default:
		return native.Descriptor{}, errors.NewInvalidFrameError(op,
			fmt.Sprintf("unknown frame type %d", int(frameType)))
	}

	return desc, nil
}

// mapAggregation maps the logical aggregate onto its native primitive. The
// set is closed; anything else is a configuration error.
func mapAggregation(op string, kind expr.AggregateKind) (native.Aggregation, error) {
	switch kind {
	case expr.AggCount:
		return native.AggregationCount, nil
	case expr.AggSum:
		return native.AggregationSum, nil
	case expr.AggMin:
		return native.AggregationMin, nil
	case expr.AggMax:
		return native.AggregationMax, nil
	default:
		return 0, errors.NewUnsupportedAggregateError(op, kind.String())
	}
}
