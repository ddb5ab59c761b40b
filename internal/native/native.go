// Package native defines the grouped/windowed aggregation interface the
// window operator drives, mirroring the entry points of a device-resident
// aggregation library: build an ephemeral table over column buffers, group
// it by its leading columns, and run a rolling (row-count-bounded) or
// ranged (order-key-distance-bounded) windowed aggregate.
//
// The package bundles one Device implementation, the CPU device. A
// GPU-backed device implements the same interface behind the same
// descriptor conventions.
package native

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Aggregation selects the native aggregate primitive
type Aggregation int

const (
	// AggregationCount counts the non-null rows of a frame. A frame with
	// fewer than MinPeriods non-null rows yields null, not zero.
	AggregationCount Aggregation = iota
	AggregationSum
	AggregationMin
	AggregationMax
)

// String returns the primitive name
func (a Aggregation) String() string {
	switch a {
	case AggregationCount:
		return "count"
	case AggregationSum:
		return "sum"
	case AggregationMin:
		return "min"
	case AggregationMax:
		return "max"
	default:
		return fmt.Sprintf("aggregation(%d)", int(a))
	}
}

// Descriptor parameterizes one windowed aggregation call.
//
// Preceding follows the device convention for rolling windows: it counts
// the current row, so a frame covering the current row and two before it
// has Preceding == 3. Ranged windows measure Preceding and Following as
// inclusive order-key distances and do not count the current row.
type Descriptor struct {
	Kind        Aggregation
	Column      int // target column index within the table
	Preceding   int
	Following   int
	MinPeriods  int // windows with fewer valid rows produce null
	OrderColumn int // order-key column index, ranged windows only
}

// Table is an ephemeral aggregation handle referencing column buffers by
// reference. It must be closed before the next window expression is
// processed to bound native memory use; Close is idempotent.
type Table struct {
	columns []arrow.Array
	numRows int
	closed  bool
}

// NumCols returns the number of columns
func (t *Table) NumCols() int {
	return len(t.columns)
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return t.numRows
}

// Column returns the array at the given position without transferring
// ownership
func (t *Table) Column(i int) arrow.Array {
	return t.columns[i]
}

// Close drops the table's column references
func (t *Table) Close() {
	if t.closed {
		return
	}
	t.closed = true
	for _, col := range t.columns {
		col.Release()
	}
	t.columns = nil
}

// Device is the aggregation library contract. Result tables carry the
// aggregate output as column 0, aligned row-for-row with the input table.
type Device interface {
	// NewTable assembles a table over the given columns by reference,
	// retaining each. All columns must share one length.
	NewTable(columns ...arrow.Array) (*Table, error)

	// GroupedRollingWindow groups t by its leading numGroupColumns columns
	// and computes a row-count-bounded windowed aggregate per the
	// descriptor.
	GroupedRollingWindow(ctx context.Context, t *Table, numGroupColumns int, desc Descriptor) (*Table, error)

	// GroupedRangeWindow groups t by its leading numGroupColumns columns
	// and computes an order-key-distance-bounded windowed aggregate per
	// the descriptor.
	GroupedRangeWindow(ctx context.Context, t *Table, numGroupColumns int, desc Descriptor) (*Table, error)
}
