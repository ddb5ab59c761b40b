// Package pipeline drives window evaluation across a parallel-partitioned
// batch pipeline. Each partition stream of the dataset is processed
// independently and in parallel; within a single stream, batches are
// evaluated strictly sequentially, one at a time, in the worker's
// goroutine. The evaluator itself stays a pure per-batch function.
//
// Cancellation is cooperative at the stream level: once the context is
// done, no further batches are requested; a batch under evaluation runs to
// completion.
package pipeline

import (
	"context"
	"runtime"
	"sync"

	"github.com/paveg/velo/internal/batch"
)

// Evaluator is the per-batch transformation applied to a stream. One
// instance serves one stream: partition-locality enforcement carries
// cross-batch bookkeeping, so evaluators are not shared across streams.
type Evaluator interface {
	Evaluate(ctx context.Context, in *batch.Batch) (*batch.Batch, error)
}

// Stream yields one partition's batches lazily and in order. Next returns
// a nil batch when the stream is exhausted. Ownership of returned batches
// transfers to the caller.
type Stream interface {
	Next(ctx context.Context) (*batch.Batch, error)
}

// StreamResult holds one stream's output batches, or the error that ended
// it. A failed stream emits no partial output: already-produced batches
// are released before the error is reported.
type StreamResult struct {
	Batches []*batch.Batch
	Err     error
}

// WorkerPool manages a pool of goroutines for stream processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Close shuts down the worker pool
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// Run evaluates every stream in parallel and returns per-stream results in
// stream order. newEvaluator is called once per stream. Streams dropped
// because the pool was closed mid-run report the cancellation error rather
// than an empty success.
func Run(
	ctx context.Context,
	wp *WorkerPool,
	newEvaluator func() (Evaluator, error),
	streams []Stream,
) []StreamResult {
	results := ProcessIndexed(wp, streams, func(_ int, s Stream) StreamResult {
		return runStream(ctx, newEvaluator, s)
	})
	for i := range results {
		if results[i].Batches == nil && results[i].Err == nil {
			results[i].Err = wp.ctx.Err()
			if results[i].Err == nil {
				results[i].Err = context.Canceled
			}
		}
	}
	return results
}

// runStream drains one stream sequentially through a fresh evaluator
func runStream(ctx context.Context, newEvaluator func() (Evaluator, error), s Stream) StreamResult {
	ev, err := newEvaluator()
	if err != nil {
		return StreamResult{Err: err}
	}

	var out []*batch.Batch
	fail := func(err error) StreamResult {
		for _, b := range out {
			b.Release()
		}
		return StreamResult{Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		in, err := s.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if in == nil {
			// Non-nil even when empty: Run reads a nil Batches slice with a
			// nil Err as a slot the pool never processed.
			if out == nil {
				out = []*batch.Batch{}
			}
			return StreamResult{Batches: out}
		}

		result, err := ev.Evaluate(ctx, in)
		in.Release()
		if err != nil {
			return fail(err)
		}
		out = append(out, result)
	}
}

// indexedItem pairs a work item with its position in the input slice
type indexedItem[T any] struct {
	index int
	value T
}

// indexedResult pairs a result with the position of the item it came from
type indexedResult[R any] struct {
	index  int
	result R
}

// Process executes work items in parallel using fan-out/fan-in pattern.
// Results arrive in completion order. When the pool is closed mid-run the
// returned slice may be shorter than items.
func Process[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(T) R,
) []R {
	if len(items) == 0 {
		return nil
	}

	itemCh := make(chan T, len(items))
	resultCh := make(chan R, len(items))

	var wg sync.WaitGroup
	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				select {
				case <-wp.ctx.Done():
					return
				default:
					resultCh <- worker(item)
				}
			}
		}()
	}

	go func() {
		defer close(itemCh)
		for _, item := range items {
			select {
			case <-wp.ctx.Done():
				return
			case itemCh <- item:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]R, 0, len(items))
	for result := range resultCh {
		results = append(results, result)
	}

	return results
}

// ProcessIndexed executes work items in parallel while preserving order:
// results[i] holds the result for items[i]. Slots for items dropped by a
// mid-run pool close keep the zero value of R.
func ProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) R,
) []R {
	if len(items) == 0 {
		return nil
	}

	indexed := make([]indexedItem[T], len(items))
	for i, item := range items {
		indexed[i] = indexedItem[T]{index: i, value: item}
	}

	collected := Process(wp, indexed, func(it indexedItem[T]) indexedResult[R] {
		return indexedResult[R]{index: it.index, result: worker(it.index, it.value)}
	})

	results := make([]R, len(items))
	for _, r := range collected {
		results[r.index] = r.result
	}

	return results
}

// SliceStream adapts a fixed batch slice into a Stream. Used by tests and
// in-memory callers.
type SliceStream struct {
	batches []*batch.Batch
	pos     int
}

// NewSliceStream creates a stream over the given batches. Ownership of the
// batches transfers to the stream's consumer as they are yielded.
func NewSliceStream(batches ...*batch.Batch) *SliceStream {
	return &SliceStream{batches: batches}
}

// Next yields the next batch, or nil when exhausted
func (s *SliceStream) Next(ctx context.Context) (*batch.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}
