package velo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/velo"
)

func checkedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() {
		mem.AssertSize(t, 0)
	})
	return mem
}

func stringColumn(t *testing.T, mem memory.Allocator, values ...string) arrow.Array {
	t.Helper()
	builder := array.NewStringBuilder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func int64Column(t *testing.T, mem memory.Allocator, values ...int64) arrow.Array {
	t.Helper()
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func int64ResultValues(t *testing.T, arr arrow.Array) []int64 {
	t.Helper()
	col, ok := arr.(*array.Int64)
	require.True(t, ok)
	values := make([]int64, col.Len())
	for i := 0; i < col.Len(); i++ {
		require.True(t, col.IsValid(i))
		values[i] = col.Value(i)
	}
	return values
}

func TestEngineEvaluate(t *testing.T) {
	mem := checkedAllocator(t)

	engine, err := velo.NewEngine(velo.NewConfig(), mem)
	require.NoError(t, err)

	in, err := velo.NewBatch(
		[]string{"account", "day", "amount"},
		[]arrow.Array{
			stringColumn(t, mem, "A", "A", "A", "B", "B"),
			int64Column(t, mem, 1, 2, 3, 1, 2),
			int64Column(t, mem, 10, 20, 30, 5, 7),
		},
	)
	require.NoError(t, err)
	defer in.Release()

	exprs := []*velo.WindowExpression{
		velo.Sum(2).Over(
			velo.NewWindow().PartitionBy(0).OrderBy(1, true).
				Rows(velo.Between(velo.Preceding(1), velo.CurrentRow())),
		).As("rolling_amount"),
	}

	ev, err := engine.NewEvaluator(3, exprs)
	require.NoError(t, err)

	out, err := ev.Evaluate(context.Background(), in)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 5, out.NumRows())
	assert.Equal(t, 4, out.NumCols())
	assert.Equal(t, "rolling_amount", out.Name(3))
	assert.Equal(t, []int64{10, 30, 50, 5, 12}, int64ResultValues(t, out.Column(3)))
}

func TestEngineRun(t *testing.T) {
	mem := checkedAllocator(t)

	cfg := velo.NewConfig()
	cfg.PipelineWorkers = 2
	engine, err := velo.NewEngine(cfg, mem)
	require.NoError(t, err)

	newBatch := func(parts []string, days, amounts []int64) *velo.Batch {
		b, err := velo.NewBatch(
			[]string{"account", "day", "amount"},
			[]arrow.Array{
				stringColumn(t, mem, parts...),
				int64Column(t, mem, days...),
				int64Column(t, mem, amounts...),
			},
		)
		require.NoError(t, err)
		return b
	}

	exprs := []*velo.WindowExpression{
		velo.Max(2).Over(
			velo.NewWindow().PartitionBy(0).OrderBy(1, true).
				Range(velo.Between(
					velo.IntervalPreceding(48*time.Hour),
					velo.IntervalFollowing(24*time.Hour),
				)),
		).As("peak_amount"),
	}

	streams := []velo.Stream{
		velo.NewSliceStream(newBatch([]string{"A", "A", "A"}, []int64{1, 2, 3}, []int64{10, 20, 30})),
		velo.NewSliceStream(newBatch([]string{"B", "B"}, []int64{1, 2}, []int64{5, 7})),
	}

	results, err := engine.Run(context.Background(), 3, exprs, streams)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Batches, 1)
	assert.Equal(t, []int64{20, 30, 30}, int64ResultValues(t, results[0].Batches[0].Column(3)))

	require.NoError(t, results[1].Err)
	assert.Equal(t, []int64{7, 7}, int64ResultValues(t, results[1].Batches[0].Column(3)))

	for _, r := range results {
		for _, b := range r.Batches {
			b.Release()
		}
	}
}

func TestEngineRunRejectsBadPlanUpFront(t *testing.T) {
	mem := checkedAllocator(t)

	engine, err := velo.NewEngine(velo.NewConfig(), mem)
	require.NoError(t, err)

	// Lower bound strictly ahead of the current row is rejected before any
	// stream is touched.
	exprs := []*velo.WindowExpression{
		velo.Sum(1).Over(
			velo.NewWindow().PartitionBy(0).
				Rows(velo.Between(velo.Following(1), velo.Following(2))),
		),
	}

	_, err = engine.Run(context.Background(), 2, exprs, nil)
	require.Error(t, err)

	var we *velo.WindowError
	require.True(t, errors.As(err, &we))
}

func TestNewEngineValidation(t *testing.T) {
	cfg := velo.NewConfig()
	cfg.Device = "tpu"
	_, err := velo.NewEngine(cfg, nil)
	require.Error(t, err)

	cfg = velo.NewConfig()
	cfg.Device = "gpu"
	_, err = velo.NewEngine(cfg, nil)
	require.Error(t, err, "no gpu device is linked into this build")
}
