package mpsc

import "sync"

// envelope carries either a payload or the stop sentinel pushed by Worker.Stop.
type envelope[T any] struct {
	value    T
	sentinel bool
}

// queue is an unbounded FIFO with many producers and a single receiver.
// The receive side blocks until an item is available or until no producer
// reference is left, which is how channel closure is observed.
type queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	items []envelope[T]
	head  int // next read position
	size  int

	enqueued     uint64
	producers    int  // live producer handles
	receiverGone bool // set once the drain loop has exited

	metrics *workerMetrics
}

func newQueue[T any](capacity int, metrics *workerMetrics) *queue[T] {
	if capacity <= 0 {
		capacity = defaultInitialCapacity
	}
	q := &queue[T]{
		items:   make([]envelope[T], capacity),
		metrics: metrics,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// acquire registers one more live producer handle.
func (q *queue[T]) acquire() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.producers++
	q.metrics.setProducers(q.producers)
}

// release drops one producer reference. The last release wakes the receiver
// so it can observe closure once the backlog is drained.
func (q *queue[T]) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.producers--
	q.metrics.setProducers(q.producers)
	if q.producers == 0 {
		q.notEmpty.Broadcast()
	}
}

// push appends a payload. It never blocks on capacity.
func (q *queue[T]) push(v T) error {
	return q.enqueue(envelope[T]{value: v})
}

// pushSentinel appends the stop marker.
func (q *queue[T]) pushSentinel() {
	_ = q.enqueue(envelope[T]{sentinel: true})
}

func (q *queue[T]) enqueue(e envelope[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.receiverGone {
		return errReceiverGone
	}

	if q.size == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.size)%len(q.items)] = e
	q.size++
	if !e.sentinel {
		q.enqueued++
		q.metrics.recordEnqueue(q.size)
	}
	q.notEmpty.Signal()

	return nil
}

// pop blocks until an envelope is available. It returns false once the queue
// is empty and no producer handle is alive; from then on the receive side is
// considered gone and every push fails.
func (q *queue[T]) pop() (envelope[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && q.producers > 0 {
		q.notEmpty.Wait()
	}

	if q.size == 0 {
		q.receiverGone = true
		return envelope[T]{}, false
	}

	var zero envelope[T]
	e := q.items[q.head]
	q.items[q.head] = zero // clear for GC
	q.head = (q.head + 1) % len(q.items)
	q.size--

	if !e.sentinel {
		q.metrics.setDepth(q.size)
	}
	return e, true
}

// closeReceiver marks the receive side gone and discards whatever is still
// queued. It returns the number of discarded payloads, sentinels excluded.
func (q *queue[T]) closeReceiver() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receiverGone = true

	var zero envelope[T]
	discarded := 0
	for q.size > 0 {
		if !q.items[q.head].sentinel {
			discarded++
		}
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
		q.size--
	}
	q.head = 0
	q.metrics.setDepth(0)

	return discarded
}

// len returns the number of queued payloads and sentinels.
func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// enqueuedTotal returns the number of payloads ever accepted.
func (q *queue[T]) enqueuedTotal() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}

// liveProducers returns the number of unreleased producer handles.
func (q *queue[T]) liveProducers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.producers
}

// grow doubles the ring, unwrapping it so that head starts at zero.
// Caller must hold q.mu.
func (q *queue[T]) grow() {
	items := make([]envelope[T], len(q.items)*2)
	n := copy(items, q.items[q.head:])
	copy(items[n:], q.items[:q.head])
	q.items = items
	q.head = 0
}
