// Package expr defines the window expression model consumed by the window
// operator: aggregate kinds, window specifications, frame types and frame
// boundaries. Expressions arrive with column references already bound to
// positional indices of the input schema; name resolution happens upstream.
package expr

import (
	"fmt"
	"strings"
	"time"
)

// AggregateKind identifies a window aggregate function. The set is closed:
// the operator dispatches to exactly four native primitives.
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggSum
	AggMin
	AggMax
)

// String returns the SQL name of the aggregate
func (k AggregateKind) String() string {
	switch k {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return fmt.Sprintf("AGGREGATE(%d)", int(k))
	}
}

// FrameType distinguishes row-count frames from order-key-distance frames
type FrameType int

const (
	FrameRows FrameType = iota
	FrameRange
)

// String returns the SQL keyword for the frame type
func (t FrameType) String() string {
	if t == FrameRange {
		return "RANGE"
	}
	return "ROWS"
}

// BoundaryType represents the type of frame boundary
type BoundaryType int

const (
	BoundaryUnboundedPreceding BoundaryType = iota
	BoundaryPreceding
	BoundaryCurrentRow
	BoundaryFollowing
	BoundaryUnboundedFollowing
	BoundaryIntervalPreceding
	BoundaryIntervalFollowing
)

// Boundary represents one frame boundary: a sentinel, a row-offset literal,
// or an interval literal for range frames.
type Boundary struct {
	boundaryType BoundaryType
	rows         int
	interval     time.Duration
}

// Type returns the boundary type
func (b *Boundary) Type() BoundaryType {
	return b.boundaryType
}

// Rows returns the row offset for row-offset boundaries
func (b *Boundary) Rows() int {
	return b.rows
}

// Interval returns the interval for interval boundaries
func (b *Boundary) Interval() time.Duration {
	return b.interval
}

// Boundary construction functions

// UnboundedPreceding creates an unbounded preceding boundary
func UnboundedPreceding() *Boundary {
	return &Boundary{boundaryType: BoundaryUnboundedPreceding}
}

// Preceding creates a preceding boundary offset by n rows
func Preceding(n int) *Boundary {
	return &Boundary{boundaryType: BoundaryPreceding, rows: n}
}

// CurrentRow creates a current row boundary
func CurrentRow() *Boundary {
	return &Boundary{boundaryType: BoundaryCurrentRow}
}

// Following creates a following boundary offset by n rows
func Following(n int) *Boundary {
	return &Boundary{boundaryType: BoundaryFollowing, rows: n}
}

// UnboundedFollowing creates an unbounded following boundary
func UnboundedFollowing() *Boundary {
	return &Boundary{boundaryType: BoundaryUnboundedFollowing}
}

// IntervalPreceding creates a preceding boundary offset by an interval.
// Only day-granularity intervals are resolvable; sub-day components are
// rejected at plan validation.
func IntervalPreceding(d time.Duration) *Boundary {
	return &Boundary{boundaryType: BoundaryIntervalPreceding, interval: d}
}

// IntervalFollowing creates a following boundary offset by an interval
func IntervalFollowing(d time.Duration) *Boundary {
	return &Boundary{boundaryType: BoundaryIntervalFollowing, interval: d}
}

// String returns the string representation of the boundary
func (b *Boundary) String() string {
	switch b.boundaryType {
	case BoundaryUnboundedPreceding:
		return "UNBOUNDED PRECEDING"
	case BoundaryPreceding:
		return fmt.Sprintf("%d PRECEDING", b.rows)
	case BoundaryCurrentRow:
		return "CURRENT ROW"
	case BoundaryFollowing:
		return fmt.Sprintf("%d FOLLOWING", b.rows)
	case BoundaryUnboundedFollowing:
		return "UNBOUNDED FOLLOWING"
	case BoundaryIntervalPreceding:
		return fmt.Sprintf("INTERVAL %s PRECEDING", b.interval)
	case BoundaryIntervalFollowing:
		return fmt.Sprintf("INTERVAL %s FOLLOWING", b.interval)
	default:
		return "UNKNOWN"
	}
}

// Frame represents the frame specification for a window: row-count or
// range semantics plus lower and upper boundaries.
type Frame struct {
	frameType FrameType
	lower     *Boundary
	upper     *Boundary
}

// Between creates a window frame between two boundaries. The frame type is
// assigned when the frame is attached to a window via Rows or Range.
func Between(lower, upper *Boundary) *Frame {
	return &Frame{lower: lower, upper: upper}
}

// Type returns the frame type
func (f *Frame) Type() FrameType {
	return f.frameType
}

// Lower returns the lower boundary
func (f *Frame) Lower() *Boundary {
	return f.lower
}

// Upper returns the upper boundary
func (f *Frame) Upper() *Boundary {
	return f.upper
}

// String returns the string representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", f.frameType, f.lower, f.upper)
}

// SortKey represents a column ordering specification, bound positionally
type SortKey struct {
	Column    int
	Ascending bool
}

func (s SortKey) String() string {
	direction := "ASC"
	if !s.Ascending {
		direction = "DESC"
	}
	return fmt.Sprintf("#%d %s", s.Column, direction)
}

// WindowSpec represents a window specification: partition keys, sort keys
// and the frame
type WindowSpec struct {
	partitionBy []int
	orderBy     []SortKey
	frame       *Frame
}

// NewWindow creates a new window specification
func NewWindow() *WindowSpec {
	return &WindowSpec{}
}

// PartitionBy sets the partition key column indices for the window
func (w *WindowSpec) PartitionBy(columns ...int) *WindowSpec {
	w.partitionBy = columns
	return w
}

// OrderBy adds an ordering specification to the window
func (w *WindowSpec) OrderBy(column int, ascending bool) *WindowSpec {
	w.orderBy = append(w.orderBy, SortKey{Column: column, Ascending: ascending})
	return w
}

// Rows sets a ROWS frame for the window
func (w *WindowSpec) Rows(frame *Frame) *WindowSpec {
	frame.frameType = FrameRows
	w.frame = frame
	return w
}

// Range sets a RANGE frame for the window
func (w *WindowSpec) Range(frame *Frame) *WindowSpec {
	frame.frameType = FrameRange
	w.frame = frame
	return w
}

// PartitionKeys returns the partition key column indices
func (w *WindowSpec) PartitionKeys() []int {
	return w.partitionBy
}

// SortKeys returns the ordering specifications
func (w *WindowSpec) SortKeys() []SortKey {
	return w.orderBy
}

// Frame returns the frame specification, nil if none was set
func (w *WindowSpec) Frame() *Frame {
	return w.frame
}

// String returns the string representation of the window spec
func (w *WindowSpec) String() string {
	var parts []string

	if len(w.partitionBy) > 0 {
		cols := make([]string, len(w.partitionBy))
		for i, c := range w.partitionBy {
			cols[i] = fmt.Sprintf("#%d", c)
		}
		parts = append(parts, "PARTITION BY "+strings.Join(cols, ", "))
	}

	if len(w.orderBy) > 0 {
		keys := make([]string, len(w.orderBy))
		for i, k := range w.orderBy {
			keys[i] = k.String()
		}
		parts = append(parts, "ORDER BY "+strings.Join(keys, ", "))
	}

	if w.frame != nil {
		parts = append(parts, w.frame.String())
	}

	return "OVER (" + strings.Join(parts, " ") + ")"
}

// AggregateExpr represents an aggregate function over one bound input column
type AggregateExpr struct {
	kind   AggregateKind
	column int
}

// Count creates a COUNT aggregate over the given column index
func Count(column int) *AggregateExpr {
	return &AggregateExpr{kind: AggCount, column: column}
}

// Sum creates a SUM aggregate over the given column index
func Sum(column int) *AggregateExpr {
	return &AggregateExpr{kind: AggSum, column: column}
}

// Min creates a MIN aggregate over the given column index
func Min(column int) *AggregateExpr {
	return &AggregateExpr{kind: AggMin, column: column}
}

// Max creates a MAX aggregate over the given column index
func Max(column int) *AggregateExpr {
	return &AggregateExpr{kind: AggMax, column: column}
}

// NewAggregate creates an AggregateExpr for an arbitrary kind. Kinds outside
// the supported set are rejected at plan validation, not here.
func NewAggregate(kind AggregateKind, column int) *AggregateExpr {
	return &AggregateExpr{kind: kind, column: column}
}

// Kind returns the aggregate kind
func (a *AggregateExpr) Kind() AggregateKind {
	return a.kind
}

// Column returns the bound input column index
func (a *AggregateExpr) Column() int {
	return a.column
}

// String returns the string representation
func (a *AggregateExpr) String() string {
	return fmt.Sprintf("%s(#%d)", a.kind, a.column)
}

// Over creates a window expression evaluating this aggregate over the
// specified window
func (a *AggregateExpr) Over(window *WindowSpec) *WindowExpression {
	return &WindowExpression{
		agg:    a,
		window: window,
	}
}

// WindowExpression represents one output column definition: an aggregate
// evaluated over a window. Constructed once per operator instantiation and
// immutable thereafter.
type WindowExpression struct {
	agg    *AggregateExpr
	window *WindowSpec
	name   string
}

// As sets the output column name
func (w *WindowExpression) As(name string) *WindowExpression {
	w.name = name
	return w
}

// Aggregate returns the aggregate expression, nil for malformed expressions
func (w *WindowExpression) Aggregate() *AggregateExpr {
	return w.agg
}

// Window returns the window specification, nil for malformed expressions
func (w *WindowExpression) Window() *WindowSpec {
	return w.window
}

// Name returns the output column name, or a generated one if unset
func (w *WindowExpression) Name() string {
	if w.name != "" {
		return w.name
	}
	return strings.ToLower(w.agg.kind.String())
}

// String returns the string representation
func (w *WindowExpression) String() string {
	return fmt.Sprintf("%s %s", w.agg, w.window)
}
