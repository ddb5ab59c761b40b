// Package testutil provides common testing utilities for window operator
// tests: checked allocator setup, Arrow array builders, and batch
// construction helpers.
package testutil

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/paveg/velo/internal/batch"
)

// Allocator returns a checked allocator that fails the test on leaked
// buffers. Cleanup runs the leak assertion automatically.
func Allocator(tb testing.TB) *memory.CheckedAllocator {
	tb.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	tb.Cleanup(func() {
		mem.AssertSize(tb, 0)
	})
	return mem
}

// Int64Array builds an Int64 array from values
func Int64Array(tb testing.TB, mem memory.Allocator, values ...int64) arrow.Array {
	tb.Helper()
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

// Int64ArrayWithNulls builds an Int64 array with the given validity mask
func Int64ArrayWithNulls(tb testing.TB, mem memory.Allocator, values []int64, valid []bool) arrow.Array {
	tb.Helper()
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	builder.AppendValues(values, valid)
	return builder.NewArray()
}

// Float64Array builds a Float64 array from values
func Float64Array(tb testing.TB, mem memory.Allocator, values ...float64) arrow.Array {
	tb.Helper()
	builder := array.NewFloat64Builder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

// StringArray builds a String array from values
func StringArray(tb testing.TB, mem memory.Allocator, values ...string) arrow.Array {
	tb.Helper()
	builder := array.NewStringBuilder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

// NewBatch builds a batch taking ownership of the given columns
func NewBatch(tb testing.TB, names []string, columns []arrow.Array) *batch.Batch {
	tb.Helper()
	b, err := batch.New(names, columns)
	require.NoError(tb, err)
	return b
}

// Int64Values extracts values from an Int64 result column; null slots are
// reported in the second return
func Int64Values(tb testing.TB, arr arrow.Array) ([]int64, []bool) {
	tb.Helper()
	a, ok := arr.(*array.Int64)
	require.True(tb, ok, "expected *array.Int64, got %T", arr)

	values := make([]int64, a.Len())
	valid := make([]bool, a.Len())
	for i := 0; i < a.Len(); i++ {
		if a.IsValid(i) {
			values[i] = a.Value(i)
			valid[i] = true
		}
	}
	return values, valid
}

// Float64Values extracts values from a Float64 result column
func Float64Values(tb testing.TB, arr arrow.Array) ([]float64, []bool) {
	tb.Helper()
	a, ok := arr.(*array.Float64)
	require.True(tb, ok, "expected *array.Float64, got %T", arr)

	values := make([]float64, a.Len())
	valid := make([]bool, a.Len())
	for i := 0; i < a.Len(); i++ {
		if a.IsValid(i) {
			values[i] = a.Value(i)
			valid[i] = true
		}
	}
	return values, valid
}
