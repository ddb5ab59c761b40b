// Package window implements the window-evaluation operator: it translates
// logical window expressions (partition keys, sort keys, frame type, frame
// bounds, aggregate function) into native batched aggregation calls over
// column buffers and reassembles the results into output batches.
//
// The operator is a pure per-batch transformation: it introduces no
// threading of its own, carries no cross-batch result state, and inherits
// partitioning and ordering unchanged from its input.
package window

import (
	"context"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.uber.org/zap"

	"github.com/paveg/velo/internal/batch"
	"github.com/paveg/velo/internal/errors"
	"github.com/paveg/velo/internal/expr"
	"github.com/paveg/velo/internal/native"
)

// Evaluator evaluates a fixed list of window expressions over a sequence of
// columnar batches. Construct with NewEvaluator; the expression list is
// validated once, before any batch is touched.
type Evaluator struct {
	exprs      []*expr.WindowExpression
	device     native.Device
	inputWidth int
	log        *zap.Logger

	// Partition-locality enforcement: each partition's rows must be
	// co-located within one batch for windowing to be correct. lastKeys
	// remembers the final partition key of the previous batch per
	// expression so a straddling partition is rejected, not miscomputed.
	enforceLocality bool
	lastKeys        []string
	seenBatch       bool
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLogger sets the logger; the default is a no-op logger
func WithLogger(log *zap.Logger) Option {
	return func(e *Evaluator) {
		e.log = log
	}
}

// WithLocalityCheck toggles cross-batch partition-locality enforcement
func WithLocalityCheck(enabled bool) Option {
	return func(e *Evaluator) {
		e.enforceLocality = enabled
	}
}

// NewEvaluator validates the window expressions against the declared input
// width and returns an evaluator for them. Validation is first-error-wins
// and covers every configuration surface: aggregate kinds, boundary shapes,
// bound signs, range sort-key arity, and bound column indices.
func NewEvaluator(
	inputWidth int,
	exprs []*expr.WindowExpression,
	device native.Device,
	opts ...Option,
) (*Evaluator, error) {
	if device == nil {
		return nil, errors.NewPlanShapeError("NewEvaluator", "no aggregation device supplied")
	}
	if inputWidth < 0 {
		return nil, errors.NewPlanShapeError("NewEvaluator", fmt.Sprintf("negative input width %d", inputWidth))
	}

	e := &Evaluator{
		exprs:           exprs,
		device:          device,
		inputWidth:      inputWidth,
		log:             zap.NewNop(),
		enforceLocality: true,
		lastKeys:        make([]string, len(exprs)),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, we := range exprs {
		if err := e.validateExpression(i, we); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// validateExpression checks one window expression before execution
func (e *Evaluator) validateExpression(i int, we *expr.WindowExpression) error {
	op := fmt.Sprintf("ValidatePlan[%d]", i)

	if we == nil || we.Aggregate() == nil || we.Window() == nil {
		return errors.NewPlanShapeError(op, "window expression shape is not supported")
	}
	frame := we.Window().Frame()
	if frame == nil {
		return errors.NewPlanShapeError(op, "window expression without a frame specification is not supported")
	}

	if _, err := mapAggregation(op, we.Aggregate().Kind()); err != nil {
		return err
	}

	lower, err := ResolveBoundary(frame.Lower())
	if err != nil {
		return err
	}
	upper, err := ResolveBoundary(frame.Upper())
	if err != nil {
		return err
	}
	if lower > 0 {
		return errors.NewInvalidFrameError(op,
			fmt.Sprintf("lower bound %d starts after the current row", lower))
	}
	if upper < 0 {
		return errors.NewInvalidFrameError(op,
			fmt.Sprintf("upper bound %d ends before the current row", upper))
	}

	sortKeys := we.Window().SortKeys()
	switch frame.Type() {
	case expr.FrameRows:
		if isInterval(frame.Lower()) || isInterval(frame.Upper()) {
			return errors.NewInvalidFrameError(op, "interval boundaries require a RANGE frame")
		}
	case expr.FrameRange:
		if len(sortKeys) > 1 {
			return errors.NewMultiColumnRangeError(op, len(sortKeys))
		}
		if len(sortKeys) == 0 {
			return errors.NewInvalidFrameError(op, "range frames require a sort key")
		}
	}

	for _, col := range we.Window().PartitionKeys() {
		if col < 0 || col >= e.inputWidth {
			return errors.NewColumnIndexError(op, col, e.inputWidth)
		}
	}
	for _, key := range sortKeys {
		if key.Column < 0 || key.Column >= e.inputWidth {
			return errors.NewColumnIndexError(op, key.Column, e.inputWidth)
		}
	}
	if col := we.Aggregate().Column(); col < 0 || col >= e.inputWidth {
		return errors.NewColumnIndexError(op, col, e.inputWidth)
	}
	return nil
}

func isInterval(b *expr.Boundary) bool {
	t := b.Type()
	return t == expr.BoundaryIntervalPreceding || t == expr.BoundaryIntervalFollowing
}

// Evaluate computes every window expression over one batch and returns the
// output batch: the input columns, retained, followed by one result column
// per expression, in declaration order. The row count is unchanged.
//
// On any failure all intermediate projections, tables and already-computed
// result columns are released before the error propagates; no partial batch
// is emitted.
func (e *Evaluator) Evaluate(ctx context.Context, in *batch.Batch) (*batch.Batch, error) {
	const op = "Evaluate"

	if in.NumCols() != e.inputWidth {
		return nil, errors.NewPlanShapeError(op,
			fmt.Sprintf("batch has %d columns, plan declared %d", in.NumCols(), e.inputWidth))
	}

	if e.enforceLocality {
		if err := e.checkPartitionLocality(in); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(e.exprs))
	results := make([]arrow.Array, 0, len(e.exprs))
	releaseResults := func() {
		for _, r := range results {
			r.Release()
		}
	}

	for _, we := range e.exprs {
		result, err := e.evaluateExpression(ctx, in, we)
		if err != nil {
			releaseResults()
			return nil, err
		}
		results = append(results, result)
		names = append(names, we.Name())

		e.log.Debug("window expression evaluated",
			zap.String("expression", we.String()),
			zap.Int("rows", in.NumRows()))
	}

	out, err := batch.Extend(in, names, results)
	if err != nil {
		releaseResults()
		return nil, errors.NewResourceError(op, err)
	}
	return out, nil
}

// evaluateExpression runs one window expression over the batch and returns
// the result column with its own reference. Every intermediate is released
// on every exit path.
func (e *Evaluator) evaluateExpression(
	ctx context.Context,
	in *batch.Batch,
	we *expr.WindowExpression,
) (arrow.Array, error) {
	const op = "Evaluate"

	spec := we.Window()
	frame := spec.Frame()
	isRange := frame.Type() == expr.FrameRange

	lower, err := ResolveBoundary(frame.Lower())
	if err != nil {
		return nil, err
	}
	upper, err := ResolveBoundary(frame.Upper())
	if err != nil {
		return nil, err
	}

	groupingColumns := len(spec.PartitionKeys())
	desc, err := BuildDescriptor(frame.Type(), we.Aggregate().Kind(), lower, upper, groupingColumns)
	if err != nil {
		return nil, err
	}

	// Three scoped projections share the input's buffers by reference:
	// partition keys, the order key for range frames, the aggregation
	// input. Each holds its own reference until the table is built.
	keys, err := in.Project(spec.PartitionKeys()...)
	if err != nil {
		return nil, errors.NewResourceError(op, err)
	}
	defer keys.Release()

	tableColumns := keys.Columns()

	if isRange {
		order, oerr := in.Project(spec.SortKeys()[0].Column)
		if oerr != nil {
			return nil, errors.NewResourceError(op, oerr)
		}
		defer order.Release()
		tableColumns = append(tableColumns, order.Column(0))
	}

	input, err := in.Project(we.Aggregate().Column())
	if err != nil {
		return nil, errors.NewResourceError(op, err)
	}
	defer input.Release()
	tableColumns = append(tableColumns, input.Column(0))

	table, err := e.device.NewTable(tableColumns...)
	if err != nil {
		return nil, errors.NewResourceError(op, err)
	}
	defer table.Close()

	var aggregated *native.Table
	if isRange {
		aggregated, err = e.device.GroupedRangeWindow(ctx, table, groupingColumns, desc)
	} else {
		aggregated, err = e.device.GroupedRollingWindow(ctx, table, groupingColumns, desc)
	}
	if err != nil {
		return nil, errors.NewResourceError(op, err)
	}
	defer aggregated.Close()

	// The aggregate output is always column 0; retain it past the result
	// table's scope.
	result := aggregated.Column(0)
	result.Retain()
	return result, nil
}

// checkPartitionLocality rejects a batch whose first partition continues
// the previous batch's last partition. Runs before any native work so a
// violation never emits partial results.
func (e *Evaluator) checkPartitionLocality(in *batch.Batch) error {
	const op = "Evaluate"

	if in.NumRows() == 0 {
		return nil
	}

	for i, we := range e.exprs {
		keyCols := we.Window().PartitionKeys()
		if len(keyCols) == 0 {
			continue
		}
		first, err := partitionKey(in, keyCols, 0)
		if err != nil {
			return errors.NewResourceError(op, err)
		}
		if e.seenBatch && first == e.lastKeys[i] {
			return errors.NewInvalidFrameError(op,
				fmt.Sprintf("partition %q straddles a batch boundary; upstream must co-locate each partition within one batch", first))
		}
		last, err := partitionKey(in, keyCols, in.NumRows()-1)
		if err != nil {
			return errors.NewResourceError(op, err)
		}
		e.lastKeys[i] = last
	}
	e.seenBatch = true
	return nil
}

// partitionKey renders the partition key of one row for locality checks
func partitionKey(in *batch.Batch, columns []int, row int) (string, error) {
	key := ""
	for _, c := range columns {
		col := in.Column(c)
		if col.IsNull(row) {
			key += "\x00\x1f"
			continue
		}
		switch a := col.(type) {
		case *array.String:
			key += a.Value(row) + "\x1f"
		case *array.Int32:
			key += strconv.FormatInt(int64(a.Value(row)), 10) + "\x1f"
		case *array.Int64:
			key += strconv.FormatInt(a.Value(row), 10) + "\x1f"
		case *array.Float64:
			key += strconv.FormatFloat(a.Value(row), 'g', -1, 64) + "\x1f"
		case *array.Boolean:
			key += strconv.FormatBool(a.Value(row)) + "\x1f"
		case *array.Date32:
			key += strconv.FormatInt(int64(a.Value(row)), 10) + "\x1f"
		default:
			return "", fmt.Errorf("unsupported partition key type %s", col.DataType())
		}
	}
	return key, nil
}

// Expressions returns the window expressions in output order
func (e *Evaluator) Expressions() []*expr.WindowExpression {
	return e.exprs
}

// InputWidth returns the declared input schema width
func (e *Evaluator) InputWidth() int {
	return e.inputWidth
}
