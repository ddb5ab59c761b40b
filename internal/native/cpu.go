package native

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	xxhash "github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// CPUDevice evaluates grouped window aggregates on the host. It reproduces
// the device library's conventions exactly: Preceding counts the current row
// for rolling windows, ranged windows bound the frame by inclusive order-key
// distance, and windows with fewer than MinPeriods valid rows yield null.
type CPUDevice struct {
	mem memory.Allocator
}

// NewCPUDevice creates a CPU device backed by the given allocator
func NewCPUDevice(mem memory.Allocator) *CPUDevice {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &CPUDevice{mem: mem}
}

// NewTable assembles a table over the given columns by reference
func (d *CPUDevice) NewTable(columns ...arrow.Array) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("native: table requires at least one column")
	}

	numRows := columns[0].Len()
	for i, col := range columns {
		if col == nil {
			return nil, fmt.Errorf("native: table column %d is nil", i)
		}
		if col.Len() != numRows {
			return nil, fmt.Errorf("native: table column %d has %d rows, expected %d", i, col.Len(), numRows)
		}
	}

	for _, col := range columns {
		col.Retain()
	}
	return &Table{
		columns: append([]arrow.Array(nil), columns...),
		numRows: numRows,
	}, nil
}

// GroupedRollingWindow computes a row-count-bounded windowed aggregate
func (d *CPUDevice) GroupedRollingWindow(ctx context.Context, t *Table, numGroupColumns int, desc Descriptor) (*Table, error) {
	if err := checkCall(ctx, t, numGroupColumns, desc); err != nil {
		return nil, err
	}
	if desc.Preceding < 1 {
		return nil, fmt.Errorf("native: rolling window preceding must include the current row, got %d", desc.Preceding)
	}

	partitions, err := groupRows(t, numGroupColumns)
	if err != nil {
		return nil, err
	}

	frames := make([][]int, t.numRows)
	for _, part := range partitions {
		for i := range part {
			lo := i - (desc.Preceding - 1)
			if lo < 0 {
				lo = 0
			}
			hi := i + desc.Following
			if hi > len(part)-1 {
				hi = len(part) - 1
			}
			if hi >= lo {
				frames[part[i]] = part[lo : hi+1]
			}
		}
	}

	result, err := d.aggregateFrames(t.Column(desc.Column), frames, desc)
	if err != nil {
		return nil, err
	}
	return &Table{columns: []arrow.Array{result}, numRows: t.numRows}, nil
}

// GroupedRangeWindow computes an order-key-distance-bounded windowed
// aggregate. Rows whose order key is null belong to no frame and produce a
// null result.
func (d *CPUDevice) GroupedRangeWindow(ctx context.Context, t *Table, numGroupColumns int, desc Descriptor) (*Table, error) {
	if err := checkCall(ctx, t, numGroupColumns, desc); err != nil {
		return nil, err
	}
	if desc.OrderColumn < 0 || desc.OrderColumn >= t.NumCols() {
		return nil, fmt.Errorf("native: order column %d out of range for %d columns", desc.OrderColumn, t.NumCols())
	}

	keys, keyValid, err := orderKeys(t.Column(desc.OrderColumn))
	if err != nil {
		return nil, err
	}

	partitions, err := groupRows(t, numGroupColumns)
	if err != nil {
		return nil, err
	}

	frames := make([][]int, t.numRows)
	for _, part := range partitions {
		for _, r := range part {
			if !keyValid[r] {
				continue
			}
			lo := keys[r] - int64(desc.Preceding)
			hi := keys[r] + int64(desc.Following)
			var frame []int
			for _, j := range part {
				if keyValid[j] && keys[j] >= lo && keys[j] <= hi {
					frame = append(frame, j)
				}
			}
			frames[r] = frame
		}
	}

	result, err := d.aggregateFrames(t.Column(desc.Column), frames, desc)
	if err != nil {
		return nil, err
	}
	return &Table{columns: []arrow.Array{result}, numRows: t.numRows}, nil
}

// checkCall validates the pieces shared by both window entry points.
// Cancellation is checked once on entry; there is no mid-call cancellation.
func checkCall(ctx context.Context, t *Table, numGroupColumns int, desc Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.closed {
		return fmt.Errorf("native: window over a closed table")
	}
	if numGroupColumns < 0 || numGroupColumns > t.NumCols() {
		return fmt.Errorf("native: %d grouping columns for a %d-column table", numGroupColumns, t.NumCols())
	}
	if desc.Column < 0 || desc.Column >= t.NumCols() {
		return fmt.Errorf("native: aggregation column %d out of range for %d columns", desc.Column, t.NumCols())
	}
	if desc.MinPeriods < 1 {
		return fmt.Errorf("native: min periods must be at least 1, got %d", desc.MinPeriods)
	}
	if desc.Following < 0 {
		return fmt.Errorf("native: following window size must be non-negative, got %d", desc.Following)
	}
	return nil
}

// partition holds the rows of one group, in batch order
type partition struct {
	key  string
	rows []int
}

// groupRows splits the table's rows by equality of the leading
// numGroupColumns columns, preserving first-appearance order of groups and
// batch order within each group. Buckets are chained on the key hash so
// hash collisions cannot merge distinct groups.
func groupRows(t *Table, numGroupColumns int) ([][]int, error) {
	if numGroupColumns == 0 {
		rows := make([]int, t.numRows)
		for i := range rows {
			rows[i] = i
		}
		return [][]int{rows}, nil
	}

	buckets := make(map[uint64][]*partition)
	var order []*partition
	var sb strings.Builder

	for r := 0; r < t.numRows; r++ {
		sb.Reset()
		for c := 0; c < numGroupColumns; c++ {
			v, err := formatKeyValue(t.Column(c), r)
			if err != nil {
				return nil, err
			}
			sb.WriteString(v)
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		hash := xxhash.Sum64String(key)

		var p *partition
		for _, candidate := range buckets[hash] {
			if candidate.key == key {
				p = candidate
				break
			}
		}
		if p == nil {
			p = &partition{key: key}
			buckets[hash] = append(buckets[hash], p)
			order = append(order, p)
		}
		p.rows = append(p.rows, r)
	}

	partitions := make([][]int, len(order))
	for i, p := range order {
		partitions[i] = p.rows
	}
	return partitions, nil
}

// formatKeyValue renders one grouping cell into the row key. Nulls group
// together, distinct from every non-null value.
func formatKeyValue(col arrow.Array, row int) (string, error) {
	if col.IsNull(row) {
		return "\x00", nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(row), nil
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(row)), 10), nil
	case *array.Int64:
		return strconv.FormatInt(a.Value(row), 10), nil
	case *array.Float64:
		return strconv.FormatFloat(a.Value(row), 'g', -1, 64), nil
	case *array.Boolean:
		return strconv.FormatBool(a.Value(row)), nil
	case *array.Date32:
		return strconv.FormatInt(int64(a.Value(row)), 10), nil
	default:
		return "", fmt.Errorf("native: unsupported grouping column type %s", col.DataType())
	}
}

// orderKeys extracts the order column as int64 distances
func orderKeys(col arrow.Array) ([]int64, []bool, error) {
	keys := make([]int64, col.Len())
	valid := make([]bool, col.Len())

	switch a := col.(type) {
	case *array.Int64:
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				keys[i] = a.Value(i)
				valid[i] = true
			}
		}
	case *array.Int32:
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				keys[i] = int64(a.Value(i))
				valid[i] = true
			}
		}
	case *array.Date32:
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				keys[i] = int64(a.Value(i))
				valid[i] = true
			}
		}
	default:
		return nil, nil, fmt.Errorf("native: unsupported order column type %s", col.DataType())
	}
	return keys, valid, nil
}

// aggregateFrames dispatches the aggregate over the per-row frames. A nil
// frame produces a null result for that row.
func (d *CPUDevice) aggregateFrames(col arrow.Array, frames [][]int, desc Descriptor) (arrow.Array, error) {
	if desc.Kind == AggregationCount {
		return d.countFrames(col, frames, desc.MinPeriods), nil
	}

	switch a := col.(type) {
	case *array.Int64:
		vals, valid := numericColumn(a.Len(), a.IsValid, a.Value)
		out, outValid := aggregateWindows(vals, valid, frames, desc.Kind, desc.MinPeriods)
		builder := array.NewInt64Builder(d.mem)
		defer builder.Release()
		builder.AppendValues(out, outValid)
		return builder.NewArray(), nil
	case *array.Float64:
		vals, valid := numericColumn(a.Len(), a.IsValid, a.Value)
		out, outValid := aggregateWindows(vals, valid, frames, desc.Kind, desc.MinPeriods)
		builder := array.NewFloat64Builder(d.mem)
		defer builder.Release()
		builder.AppendValues(out, outValid)
		return builder.NewArray(), nil
	default:
		return nil, fmt.Errorf("native: unsupported aggregation column type %s for %s", col.DataType(), desc.Kind)
	}
}

// countFrames counts the non-null target rows within each frame
func (d *CPUDevice) countFrames(col arrow.Array, frames [][]int, minPeriods int) arrow.Array {
	builder := array.NewInt64Builder(d.mem)
	defer builder.Release()

	for _, frame := range frames {
		n := 0
		for _, j := range frame {
			if !col.IsNull(j) {
				n++
			}
		}
		if n < minPeriods {
			builder.AppendNull()
		} else {
			builder.Append(int64(n))
		}
	}
	return builder.NewArray()
}

// numericColumn materializes values and validity for the generic kernels
func numericColumn[T constraints.Integer | constraints.Float](
	n int,
	isValid func(int) bool,
	value func(int) T,
) ([]T, []bool) {
	vals := make([]T, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		if isValid(i) {
			vals[i] = value(i)
			valid[i] = true
		}
	}
	return vals, valid
}

// aggregateWindows runs sum/min/max over each frame, skipping null inputs.
// Frames with fewer than minPeriods valid rows yield null.
func aggregateWindows[T constraints.Integer | constraints.Float](
	vals []T,
	valid []bool,
	frames [][]int,
	kind Aggregation,
	minPeriods int,
) ([]T, []bool) {
	out := make([]T, len(frames))
	outValid := make([]bool, len(frames))

	for r, frame := range frames {
		var acc T
		n := 0
		for _, j := range frame {
			if !valid[j] {
				continue
			}
			v := vals[j]
			if n == 0 {
				acc = v
			} else {
				switch kind {
				case AggregationSum:
					acc += v
				case AggregationMin:
					if v < acc {
						acc = v
					}
				case AggregationMax:
					if v > acc {
						acc = v
					}
				}
			}
			n++
		}
		if n >= minPeriods {
			out[r] = acc
			outValid[r] = true
		}
	}
	return out, outValid
}
