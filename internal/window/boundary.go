package window

import (
	"time"

	"github.com/paveg/velo/internal/errors"
	"github.com/paveg/velo/internal/expr"
)

// Sentinel encodings for unbounded frame extents. 32-bit extremes keep the
// rolling-window size adjustment (-lower)+1 away from integer overflow.
const (
	unboundedPreceding = -1 << 31
	unboundedFollowing = 1<<31 - 1

	hoursPerDay = 24
)

// ResolveBoundary converts a symbolic frame boundary into a signed offset:
// rows for ROWS frames, days for RANGE frames. Resolution is pure; the same
// boundary always yields the same offset.
//
// Interval boundaries resolve only at day granularity. Sub-day components
// are rejected rather than truncated so a frame never silently covers less
// than it was declared to.
func ResolveBoundary(b *expr.Boundary) (int, error) {
	const op = "ResolveBoundary"

	if b == nil {
		return 0, errors.NewUnsupportedBoundaryError(op, "<nil>")
	}

	switch b.Type() {
	case expr.BoundaryUnboundedPreceding:
		return unboundedPreceding, nil
	case expr.BoundaryPreceding:
		return -b.Rows(), nil
	case expr.BoundaryCurrentRow:
		return 0, nil
	case expr.BoundaryFollowing:
		return b.Rows(), nil
	case expr.BoundaryUnboundedFollowing:
		return unboundedFollowing, nil
	case expr.BoundaryIntervalPreceding:
		days, err := intervalDays(op, b.Interval())
		if err != nil {
			return 0, err
		}
		return -days, nil
	case expr.BoundaryIntervalFollowing:
		return intervalDays(op, b.Interval())
	default:
		return 0, errors.NewUnsupportedBoundaryError(op, b.String())
	}
}

// intervalDays converts an interval boundary to whole days
func intervalDays(op string, d time.Duration) (int, error) {
	if d < 0 {
		return 0, errors.NewUnsupportedBoundaryError(op, d.String())
	}
	if d%(hoursPerDay*time.Hour) != 0 {
		return 0, errors.NewUnsupportedBoundaryError(op, d.String())
	}
	return int(d / (hoursPerDay * time.Hour)), nil
}
