// Package blockingpool provides a fixed-capacity pool of reusable values with
// blocking acquire and release.
package blockingpool

import "context"

// BlockingPool is a channel-backed pool of reusable values, typically decoded
// frame buffers. Its capacity bounds how many values can exist at once, which
// back-pressures whichever stage allocates from it:
//
//   - GetContext blocks until a value has been Put into the pool.
//   - Put blocks while the pool already holds capacity values.
//
// GetContext and PutContext give up when their context is done, so a stage
// waiting on the pool can still observe cancellation.
type BlockingPool[T any] struct {
	pool chan T
}

// NewBlockingPool creates an empty pool that holds at most capacity values.
func NewBlockingPool[T any](capacity int) BlockingPool[T] {
	return BlockingPool[T]{pool: make(chan T, capacity)}
}

// NewFilledBlockingPool creates a pool of the given capacity and fills it with
// values produced by alloc.
func NewFilledBlockingPool[T any](capacity int, alloc func() T) BlockingPool[T] {
	p := NewBlockingPool[T](capacity)
	for range capacity {
		p.pool <- alloc()
	}
	return p
}

// GetContext acquires a value, blocking until one is available or ctx is
// done. The caller owns the value until it hands it back with Put.
func (p *BlockingPool[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case v := <-p.pool:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Put returns a value to the pool, blocking while the pool is full.
func (p *BlockingPool[T]) Put(obj T) { p.pool <- obj }

// PutContext is Put that returns ctx.Err() if ctx is done first.
func (p *BlockingPool[T]) PutContext(ctx context.Context, obj T) error {
	select {
	case p.pool <- obj:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports how many values are currently idle in the pool.
func (p *BlockingPool[T]) Len() int { return len(p.pool) }

// Cap reports the pool's capacity.
func (p *BlockingPool[T]) Cap() int { return cap(p.pool) }
