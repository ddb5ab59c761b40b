// Package batch provides the columnar batch representation flowing through
// the window operator. A Batch is a fixed set of Arrow column buffers plus a
// row count; buffers are shared between batches by reference counting, never
// copied. Each Batch owns one reference to every column it holds and drops
// all of them exactly once on Release.
package batch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Batch represents a fixed-size, fixed-schema set of column buffers. Columns
// are positional; name resolution happens upstream of this operator.
type Batch struct {
	names   []string
	columns []arrow.Array
	numRows int
}

// New creates a Batch taking ownership of the given arrays: the caller's
// references transfer to the batch and are dropped on Release. All columns
// must share one length.
func New(names []string, columns []arrow.Array) (*Batch, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("batch: %d names for %d columns", len(names), len(columns))
	}

	numRows := 0
	for i, col := range columns {
		if col == nil {
			return nil, fmt.Errorf("batch: column %d is nil", i)
		}
		if i == 0 {
			numRows = col.Len()
		} else if col.Len() != numRows {
			return nil, fmt.Errorf("batch: column %d has %d rows, expected %d", i, col.Len(), numRows)
		}
	}

	return &Batch{
		names:   append([]string(nil), names...),
		columns: append([]arrow.Array(nil), columns...),
		numRows: numRows,
	}, nil
}

// NumRows returns the number of rows
func (b *Batch) NumRows() int {
	return b.numRows
}

// NumCols returns the number of columns
func (b *Batch) NumCols() int {
	return len(b.columns)
}

// Column returns the array at the given position without transferring
// ownership. Callers retaining it beyond the batch's lifetime must Retain it.
func (b *Batch) Column(i int) arrow.Array {
	return b.columns[i]
}

// Name returns the column name at the given position
func (b *Batch) Name(i int) string {
	return b.names[i]
}

// Names returns the column names in order
func (b *Batch) Names() []string {
	return append([]string(nil), b.names...)
}

// Columns returns the column arrays in order without transferring ownership
func (b *Batch) Columns() []arrow.Array {
	return append([]arrow.Array(nil), b.columns...)
}

// Retain increments every column's reference count
func (b *Batch) Retain() {
	for _, col := range b.columns {
		col.Retain()
	}
}

// Release decrements every column's reference count. The batch must not be
// used afterwards.
func (b *Batch) Release() {
	for _, col := range b.columns {
		col.Release()
	}
	b.columns = nil
	b.names = nil
}

// Project returns a sub-batch referencing the columns at the given
// positions. The referenced buffers are retained, not copied; the sub-batch
// and the original must each be released exactly once.
func (b *Batch) Project(indices ...int) (*Batch, error) {
	names := make([]string, 0, len(indices))
	columns := make([]arrow.Array, 0, len(indices))

	for _, idx := range indices {
		if idx < 0 || idx >= len(b.columns) {
			return nil, fmt.Errorf("batch: projection index %d out of range [0, %d)", idx, len(b.columns))
		}
		names = append(names, b.names[idx])
		columns = append(columns, b.columns[idx])
	}

	sub, err := New(names, columns)
	if err != nil {
		return nil, err
	}
	sub.Retain()
	return sub, nil
}

// Extend returns a new batch holding b's columns followed by the given
// extra columns. b's columns are retained; ownership of the extra columns
// transfers to the result. The extra columns must match b's row count.
func Extend(b *Batch, names []string, columns []arrow.Array) (*Batch, error) {
	for i, col := range columns {
		if col.Len() != b.numRows {
			return nil, fmt.Errorf("batch: extension column %d has %d rows, expected %d", i, col.Len(), b.numRows)
		}
	}

	allNames := append(b.Names(), names...)
	allColumns := append(b.Columns(), columns...)

	out, err := New(allNames, allColumns)
	if err != nil {
		return nil, err
	}
	for _, col := range b.columns {
		col.Retain()
	}
	return out, nil
}
