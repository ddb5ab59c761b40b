// Package velo provides a columnar window-function execution engine: SQL
// window aggregates (COUNT, SUM, MIN, MAX over sliding partitioned frames)
// evaluated batch-by-batch over Apache Arrow column buffers through a
// native aggregation device. This package is the sole public API for the
// library.
package velo

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/paveg/velo/internal/batch"
	"github.com/paveg/velo/internal/config"
	"github.com/paveg/velo/internal/errors"
	"github.com/paveg/velo/internal/expr"
	"github.com/paveg/velo/internal/native"
	"github.com/paveg/velo/internal/pipeline"
	"github.com/paveg/velo/internal/window"
)

// Re-exported model types. Window expressions arrive with column references
// already bound to positional indices of the input schema.
type (
	// Batch is a fixed set of refcounted Arrow column buffers plus a row count
	Batch = batch.Batch
	// WindowExpression is one output column definition
	WindowExpression = expr.WindowExpression
	// WindowSpec holds partition keys, sort keys and the frame
	WindowSpec = expr.WindowSpec
	// Frame is a ROWS or RANGE frame between two boundaries
	Frame = expr.Frame
	// Boundary is one frame boundary: sentinel, row offset or day interval
	Boundary = expr.Boundary
	// AggregateExpr is an aggregate function over one bound input column
	AggregateExpr = expr.AggregateExpr
	// AggregateKind identifies one of the four supported aggregates
	AggregateKind = expr.AggregateKind
	// Config is the engine configuration
	Config = config.Config
	// Evaluator evaluates window expressions batch by batch
	Evaluator = window.Evaluator
	// Stream yields one partition's batches lazily
	Stream = pipeline.Stream
	// StreamResult is one stream's output or terminal error
	StreamResult = pipeline.StreamResult
	// WindowError is the operator error type; discriminate with errors.As
	WindowError = errors.WindowError
)

// Aggregate kinds
const (
	AggCount = expr.AggCount
	AggSum   = expr.AggSum
	AggMin   = expr.AggMin
	AggMax   = expr.AggMax
)

// NewBatch creates a batch taking ownership of the given arrays
func NewBatch(names []string, columns []arrow.Array) (*Batch, error) {
	return batch.New(names, columns)
}

// NewWindow creates a new window specification
func NewWindow() *WindowSpec {
	return expr.NewWindow()
}

// Count creates a COUNT aggregate over the given column index
func Count(column int) *AggregateExpr { return expr.Count(column) }

// Sum creates a SUM aggregate over the given column index
func Sum(column int) *AggregateExpr { return expr.Sum(column) }

// Min creates a MIN aggregate over the given column index
func Min(column int) *AggregateExpr { return expr.Min(column) }

// Max creates a MAX aggregate over the given column index
func Max(column int) *AggregateExpr { return expr.Max(column) }

// Between creates a window frame between two boundaries
func Between(lower, upper *Boundary) *Frame { return expr.Between(lower, upper) }

// UnboundedPreceding creates an unbounded preceding boundary
func UnboundedPreceding() *Boundary { return expr.UnboundedPreceding() }

// Preceding creates a preceding boundary offset by n rows
func Preceding(n int) *Boundary { return expr.Preceding(n) }

// CurrentRow creates a current row boundary
func CurrentRow() *Boundary { return expr.CurrentRow() }

// Following creates a following boundary offset by n rows
func Following(n int) *Boundary { return expr.Following(n) }

// UnboundedFollowing creates an unbounded following boundary
func UnboundedFollowing() *Boundary { return expr.UnboundedFollowing() }

// IntervalPreceding creates a preceding boundary offset by a day-granularity interval
func IntervalPreceding(d time.Duration) *Boundary { return expr.IntervalPreceding(d) }

// IntervalFollowing creates a following boundary offset by a day-granularity interval
func IntervalFollowing(d time.Duration) *Boundary { return expr.IntervalFollowing(d) }

// NewConfig creates the default engine configuration
func NewConfig() Config {
	return config.NewConfig()
}

// NewSliceStream adapts a fixed batch slice into a Stream
func NewSliceStream(batches ...*Batch) Stream {
	return pipeline.NewSliceStream(batches...)
}

// Engine binds a configuration, an aggregation device and a logger, and
// constructs evaluators and pipelines from them.
type Engine struct {
	cfg    Config
	device native.Device
	log    *zap.Logger
}

// NewEngine creates an engine for the given configuration. A nil allocator
// falls back to the Go allocator.
func NewEngine(cfg Config, mem memory.Allocator) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("velo: invalid configuration: %w", err)
	}

	var device native.Device
	switch cfg.Device {
	case config.DeviceCPU:
		device = native.NewCPUDevice(mem)
	case config.DeviceGPU:
		return nil, fmt.Errorf("velo: gpu device is not linked into this build")
	}

	log := zap.NewNop()
	if cfg.VerboseLogging {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, fmt.Errorf("velo: building logger: %w", err)
		}
	}

	return &Engine{cfg: cfg, device: device, log: log}, nil
}

// NewEvaluator validates the window expressions against the declared input
// width and returns an evaluator for them. Configuration errors are
// reported here, before any batch is processed.
func (e *Engine) NewEvaluator(inputWidth int, exprs []*WindowExpression) (*Evaluator, error) {
	return window.NewEvaluator(inputWidth, exprs, e.device,
		window.WithLogger(e.log),
		window.WithLocalityCheck(e.cfg.EnforcePartitionLocality),
	)
}

// Run evaluates the window expressions over every partition stream in
// parallel; within a stream, batches are processed strictly sequentially.
// Results are returned in stream order.
func (e *Engine) Run(
	ctx context.Context,
	inputWidth int,
	exprs []*WindowExpression,
	streams []Stream,
) ([]StreamResult, error) {
	// Plan validation once, up front; each stream then gets its own
	// evaluator because locality enforcement is per-stream state.
	if _, err := e.NewEvaluator(inputWidth, exprs); err != nil {
		return nil, err
	}

	pool := pipeline.NewWorkerPool(e.cfg.PipelineWorkers)
	defer pool.Close()

	results := pipeline.Run(ctx, pool, func() (pipeline.Evaluator, error) {
		return e.NewEvaluator(inputWidth, exprs)
	}, streams)
	return results, nil
}
