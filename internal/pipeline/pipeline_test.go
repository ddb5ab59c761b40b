package pipeline_test

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/velo/internal/batch"
	"github.com/paveg/velo/internal/expr"
	"github.com/paveg/velo/internal/native"
	"github.com/paveg/velo/internal/pipeline"
	"github.com/paveg/velo/internal/testutil"
	"github.com/paveg/velo/internal/window"
)

func sumExprs() []*expr.WindowExpression {
	return []*expr.WindowExpression{
		expr.Sum(1).Over(
			expr.NewWindow().PartitionBy(0).
				Rows(expr.Between(expr.Preceding(1), expr.CurrentRow())),
		).As("sum_v"),
	}
}

func TestRunProcessesStreamsInParallel(t *testing.T) {
	mem := testutil.Allocator(t)
	device := native.NewCPUDevice(mem)

	newBatch := func(parts []string, values []int64) *batch.Batch {
		p := testutil.StringArray(t, mem, parts...)
		v := testutil.Int64Array(t, mem, values...)
		return testutil.NewBatch(t, []string{"part", "v"}, []arrow.Array{p, v})
	}

	streams := []pipeline.Stream{
		pipeline.NewSliceStream(
			newBatch([]string{"A", "A"}, []int64{1, 2}),
			newBatch([]string{"B", "B"}, []int64{3, 4}),
		),
		pipeline.NewSliceStream(
			newBatch([]string{"C", "C", "C"}, []int64{10, 20, 30}),
		),
	}

	var created atomic.Int32
	pool := pipeline.NewWorkerPool(2)
	defer pool.Close()

	results := pipeline.Run(context.Background(), pool, func() (pipeline.Evaluator, error) {
		created.Add(1)
		return window.NewEvaluator(2, sumExprs(), device)
	}, streams)

	require.Len(t, results, 2)
	assert.Equal(t, int32(2), created.Load(), "one evaluator per stream")

	// Results arrive in stream order regardless of completion order.
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Batches, 2)
	require.NoError(t, results[1].Err)
	require.Len(t, results[1].Batches, 1)

	sums, _ := testutil.Int64Values(t, results[1].Batches[0].Column(2))
	assert.Equal(t, []int64{10, 30, 50}, sums)

	for _, r := range results {
		for _, b := range r.Batches {
			b.Release()
		}
	}
}

func TestRunFailedStreamEmitsNoPartialOutput(t *testing.T) {
	mem := testutil.Allocator(t)
	device := native.NewCPUDevice(mem)

	good := testutil.NewBatch(t, []string{"part", "v"}, []arrow.Array{
		testutil.StringArray(t, mem, "A", "A"),
		testutil.Int64Array(t, mem, 1, 2),
	})
	// Width mismatch against the declared plan makes the second batch fail.
	bad := testutil.NewBatch(t, []string{"part"}, []arrow.Array{
		testutil.StringArray(t, mem, "B"),
	})

	pool := pipeline.NewWorkerPool(1)
	defer pool.Close()

	results := pipeline.Run(context.Background(), pool, func() (pipeline.Evaluator, error) {
		return window.NewEvaluator(2, sumExprs(), device)
	}, []pipeline.Stream{pipeline.NewSliceStream(good, bad)})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Empty(t, results[0].Batches)
}

func TestRunCancellation(t *testing.T) {
	mem := testutil.Allocator(t)
	device := native.NewCPUDevice(mem)

	pending := testutil.NewBatch(t, []string{"part", "v"}, []arrow.Array{
		testutil.StringArray(t, mem, "A"),
		testutil.Int64Array(t, mem, 1),
	})
	defer pending.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := pipeline.NewWorkerPool(1)
	defer pool.Close()

	results := pipeline.Run(ctx, pool, func() (pipeline.Evaluator, error) {
		return window.NewEvaluator(2, sumExprs(), device)
	}, []pipeline.Stream{pipeline.NewSliceStream(pending)})

	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Empty(t, results[0].Batches)
}

func TestSliceStream(t *testing.T) {
	mem := testutil.Allocator(t)

	b := testutil.NewBatch(t, []string{"v"}, []arrow.Array{
		testutil.Int64Array(t, mem, 1),
	})
	defer b.Release()

	s := pipeline.NewSliceStream(b)
	ctx := context.Background()

	got, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	got, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunClosedPoolReportsDroppedStreams(t *testing.T) {
	mem := testutil.Allocator(t)
	device := native.NewCPUDevice(mem)

	pending := testutil.NewBatch(t, []string{"part", "v"}, []arrow.Array{
		testutil.StringArray(t, mem, "A"),
		testutil.Int64Array(t, mem, 1),
	})
	defer pending.Release()

	pool := pipeline.NewWorkerPool(1)
	pool.Close()

	results := pipeline.Run(context.Background(), pool, func() (pipeline.Evaluator, error) {
		return window.NewEvaluator(2, sumExprs(), device)
	}, []pipeline.Stream{
		pipeline.NewSliceStream(pending),
		pipeline.NewSliceStream(),
	})

	require.Len(t, results, 2)
	for _, r := range results {
		require.ErrorIs(t, r.Err, context.Canceled)
		assert.Empty(t, r.Batches)
	}
}

func TestRunEmptyStreamSucceeds(t *testing.T) {
	mem := testutil.Allocator(t)
	device := native.NewCPUDevice(mem)

	pool := pipeline.NewWorkerPool(1)
	defer pool.Close()

	results := pipeline.Run(context.Background(), pool, func() (pipeline.Evaluator, error) {
		return window.NewEvaluator(2, sumExprs(), device)
	}, []pipeline.Stream{pipeline.NewSliceStream()})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Batches)
	assert.Empty(t, results[0].Batches)
}

func TestProcessCollectsAllResults(t *testing.T) {
	pool := pipeline.NewWorkerPool(4)
	defer pool.Close()

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results := pipeline.Process(pool, items, func(v int) int {
		return v * 2
	})

	// Completion order is not defined, but every item produces a result.
	require.Len(t, results, 100)
	sort.Ints(results)
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestProcessIndexedPreservesOrder(t *testing.T) {
	pool := pipeline.NewWorkerPool(4)
	defer pool.Close()

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results := pipeline.ProcessIndexed(pool, items, func(_ int, v int) int {
		return v * 2
	})

	require.Len(t, results, 100)
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestProcessEmptyItems(t *testing.T) {
	pool := pipeline.NewWorkerPool(2)
	defer pool.Close()

	assert.Nil(t, pipeline.Process(pool, nil, func(v int) int { return v }))
	assert.Nil(t, pipeline.ProcessIndexed(pool, []int{}, func(_, v int) int { return v }))
}
