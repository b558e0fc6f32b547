// Package executor runs blocking calls on a bounded number of goroutines.
//
// Callers fan out freely; the pool only limits how many blocking calls are in
// flight at once.
package executor

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when a non-positive size is given.
const DefaultSize = 8

// Pool bounds concurrent execution of blocking functions.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a Pool that allows at most size functions to run at once.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the maximum number of concurrently running functions.
func (p *Pool) Size() int { return p.size }

// Do waits for a free slot and runs fn in the calling goroutine.
// It returns ctx.Err() without running fn if ctx is done before a slot frees up.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Submit runs fn through the pool and returns its result.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
