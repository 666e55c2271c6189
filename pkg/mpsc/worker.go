package mpsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mpsc/pkg/logger"
)

// Handler processes one message on the worker goroutine.
// It is never called concurrently with itself.
type Handler[T any] interface {
	Handle(msg T)
}

// HandlerFunc adapts an ordinary function to the Handler interface
type HandlerFunc[T any] func(msg T)

// Handle calls f(msg)
func (f HandlerFunc[T]) Handle(msg T) { f(msg) }

// State describes where a worker is in its lifecycle
type State int32

const (
	// StateRunning means the drain loop accepts and handles messages
	StateRunning State = iota
	// StateShuttingDown means shutdown was requested and the loop has not exited yet
	StateShuttingDown
	// StateStopped means the drain loop has exited
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats is a point-in-time snapshot of worker counters
type Stats struct {
	Enqueued  uint64 // messages accepted by Send
	Processed uint64 // handler invocations that returned or panicked
	Dropped   uint64 // queued messages discarded by Stop
	Panics    uint64 // recovered handler panics
	Pending   int    // messages waiting in the queue
	Producers int    // unreleased producer handles
}

// Worker owns a single goroutine that drains an unbounded queue and passes
// each message to a Handler.
type Worker[T any] struct {
	id      uuid.UUID
	handler Handler[T]
	q       *queue[T]
	done    chan struct{}

	// Consumed by the first Shutdown, ShutdownContext or Stop call
	consumed atomic.Bool
	// Fast-cancel flag checked by the drain loop before every receive
	stopping atomic.Bool
	state    atomic.Int32

	processed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	name            string
	shutdownTimeout time.Duration
	logDiscarded    bool
	logger          *slog.Logger
	metrics         *workerMetrics
}

// Start spawns the drain loop and returns the first producer handle together
// with the worker. The loop is ready to receive when Start returns.
func Start[T any](handler Handler[T], opts ...Option) (*Producer[T], *Worker[T], error) {
	if handler == nil {
		return nil, nil, ErrHandlerNil
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	var metrics *workerMetrics
	if options.registerer != nil {
		var err error
		metrics, err = newWorkerMetrics(options.registerer, options.name)
		if err != nil {
			return nil, nil, err
		}
	}

	w := &Worker[T]{
		id:              uuid.New(),
		handler:         handler,
		q:               newQueue[T](options.initialCapacity, metrics),
		done:            make(chan struct{}),
		name:            options.name,
		shutdownTimeout: options.shutdownTimeout,
		logDiscarded:    options.logDiscarded,
		logger:          options.logger,
		metrics:         metrics,
	}
	w.state.Store(int32(StateRunning))

	// The producer reference is taken before the loop starts, otherwise the
	// loop could observe zero producers and exit immediately.
	p := newProducer(w.q)

	go w.run()

	w.logger.Debug("worker started",
		logger.WorkerID(w.id),
		logger.WorkerName(w.name))

	return p, w, nil
}

// StartFunc is a shorthand for Start(HandlerFunc[T](fn), opts...)
func StartFunc[T any](fn func(T), opts ...Option) (*Producer[T], *Worker[T], error) {
	if fn == nil {
		return nil, nil, ErrHandlerNil
	}
	return Start[T](HandlerFunc[T](fn), opts...)
}

// Shutdown releases the given producer handles and blocks until the drain
// loop has handled every queued message and exited.
//
// The loop exits only once every producer handle is released. Handles that
// are not passed here must be closed by their owners, before or after the
// call; until then Shutdown blocks. Calling Shutdown while some handle will
// never be released is a caller error that hangs instead of losing messages.
// Use ShutdownContext to bound the wait.
func (w *Worker[T]) Shutdown(handles ...*Producer[T]) error {
	return w.ShutdownContext(context.Background(), handles...)
}

// ShutdownContext is Shutdown with a bounded wait. If ctx expires first the
// returned error matches both ErrShutdownTimeout and ctx.Err(); the worker
// stays shut down and its loop still exits once the remaining handles are
// released, which can be observed through Done.
func (w *Worker[T]) ShutdownContext(ctx context.Context, handles ...*Producer[T]) error {
	for _, h := range handles {
		if h != nil && h.q != w.q {
			return ErrForeignProducer
		}
	}

	if !w.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}
	w.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown))

	w.logger.DebugContext(ctx, "worker shutting down",
		logger.WorkerID(w.id),
		logger.WorkerName(w.name),
		logger.Producers(w.q.liveProducers()),
		logger.QueueDepth(w.q.len()))

	for _, h := range handles {
		if h != nil {
			_ = h.Close()
		}
	}

	select {
	case <-w.done:
		return nil
	default:
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "worker shutdown timed out with unreleased producer handles",
			logger.WorkerID(w.id),
			logger.WorkerName(w.name),
			logger.Producers(w.q.liveProducers()),
			logger.Error(ctx.Err()))
		return errors.Join(ErrShutdownTimeout, ctx.Err())
	}
}

// Stop is the fast-cancel alternative to Shutdown. It raises the stop flag,
// enqueues a stop sentinel and waits for the loop to exit.
//
// Stop does not drain: the message being handled completes, but messages
// still queued, including any sent concurrently with Stop, may be discarded.
// Producer handles stay valid objects; their sends fail with ErrSendAfterClose
// once the loop has exited.
func (w *Worker[T]) Stop() error {
	if !w.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}

	w.stopping.Store(true)
	w.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown))
	w.q.pushSentinel()

	<-w.done
	return nil
}

// Run returns a function suitable for errgroup: it blocks until ctx is done,
// then shuts the worker down with the given handles, bounded by the
// configured shutdown timeout.
func (w *Worker[T]) Run(ctx context.Context, handles ...*Producer[T]) func() error {
	return func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		return w.ShutdownContext(shutdownCtx, handles...)
	}
}

// Done returns a channel that is closed when the drain loop has exited
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state
func (w *Worker[T]) State() State {
	return State(w.state.Load())
}

// ID returns the unique identifier of this worker
func (w *Worker[T]) ID() uuid.UUID {
	return w.id
}

// Name returns the configured worker name
func (w *Worker[T]) Name() string {
	return w.name
}

// Stats returns a snapshot of the worker counters
func (w *Worker[T]) Stats() Stats {
	return Stats{
		Enqueued:  w.q.enqueuedTotal(),
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
		Panics:    w.panics.Load(),
		Pending:   w.q.len(),
		Producers: w.q.liveProducers(),
	}
}

// run is the drain loop. It is the only place the handler is invoked.
func (w *Worker[T]) run() {
	defer w.finish()

	for {
		if w.stopping.Load() {
			return
		}

		e, ok := w.q.pop()
		if !ok || e.sentinel {
			return
		}

		w.dispatch(e.value)
	}
}

// dispatch invokes the handler, recovering from panics so that a faulty
// message cannot take the loop down.
func (w *Worker[T]) dispatch(msg T) {
	start := time.Now()

	defer func() {
		w.processed.Add(1)
		w.metrics.recordProcessed(time.Since(start))

		if r := recover(); r != nil {
			w.panics.Add(1)
			w.metrics.recordPanic()
			w.logger.Error("handler panicked",
				logger.WorkerID(w.id),
				logger.WorkerName(w.name),
				logger.Panic(r),
				logger.Duration(time.Since(start)))
		}
	}()

	w.handler.Handle(msg)
}

func (w *Worker[T]) finish() {
	discarded := w.q.closeReceiver()
	if discarded > 0 {
		w.dropped.Add(uint64(discarded))
		w.metrics.recordDropped(discarded)
		if w.logDiscarded {
			w.logger.Warn("worker stopped with queued messages discarded",
				logger.WorkerID(w.id),
				logger.WorkerName(w.name),
				logger.Count(discarded))
		}
	}

	w.logger.Debug("worker stopped",
		logger.WorkerID(w.id),
		logger.WorkerName(w.name),
		logger.Count(int(w.processed.Load())))

	w.state.Store(int32(StateStopped))
	close(w.done)
}
