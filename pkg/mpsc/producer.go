package mpsc

import (
	"fmt"
	"sync/atomic"
)

// Producer is a cloneable capability to enqueue messages into a worker.
//
// Every handle holds one reference on the worker's queue. The drain loop
// keeps waiting for input while at least one handle is unreleased, so each
// handle must eventually be released, either with Close or by passing it to
// Worker.Shutdown. A single handle may be used from several goroutines, but
// it is usually clearer to give every producer goroutine its own Clone.
type Producer[T any] struct {
	q        *queue[T]
	released atomic.Bool
}

func newProducer[T any](q *queue[T]) *Producer[T] {
	q.acquire()
	return &Producer[T]{q: q}
}

// Send enqueues v without blocking. Messages sent through one handle are
// handled in the order they were sent. It returns an error wrapping
// ErrSendAfterClose when the handle was released or the worker is gone.
func (p *Producer[T]) Send(v T) error {
	if p.released.Load() {
		return fmt.Errorf("%w: %w", ErrSendAfterClose, errProducerReleased)
	}
	if err := p.q.push(v); err != nil {
		return fmt.Errorf("%w: %w", ErrSendAfterClose, err)
	}
	return nil
}

// Clone returns a new handle to the same worker. The clone holds its own
// reference and must be released independently.
func (p *Producer[T]) Clone() (*Producer[T], error) {
	if p.released.Load() {
		return nil, fmt.Errorf("%w: %w", ErrSendAfterClose, errProducerReleased)
	}
	return newProducer(p.q), nil
}

// Close releases the handle. Releasing the last handle tells the drain loop
// that no more input will arrive; it exits after handling the backlog.
// Close is idempotent.
func (p *Producer[T]) Close() error {
	if p.released.CompareAndSwap(false, true) {
		p.q.release()
	}
	return nil
}

// Released reports whether Close has been called on this handle.
func (p *Producer[T]) Released() bool {
	return p.released.Load()
}
