package mpsc

import "errors"

var (
	// ErrHandlerNil is returned by Start when no handler is supplied
	ErrHandlerNil = errors.New("mpsc: handler cannot be nil")

	// ErrSendAfterClose is returned when sending through a released producer handle
	// or after the worker's receive side has been torn down
	ErrSendAfterClose = errors.New("mpsc: send after close")

	// ErrAlreadyShutdown is returned when Shutdown, ShutdownContext or Stop is called
	// on a worker that has already been shut down
	ErrAlreadyShutdown = errors.New("mpsc: worker already shut down")

	// ErrForeignProducer is returned when a producer handle created by another worker
	// is passed to Shutdown
	ErrForeignProducer = errors.New("mpsc: producer handle belongs to another worker")

	// ErrShutdownTimeout is returned by ShutdownContext when the context expires before
	// the drain loop exits
	ErrShutdownTimeout = errors.New("mpsc: shutdown did not complete before context expired")

	// ErrMetricsRegistration is returned by Start when worker metrics cannot be registered
	ErrMetricsRegistration = errors.New("mpsc: failed to register worker metrics")
)

var (
	errProducerReleased = errors.New("producer handle released")
	errReceiverGone     = errors.New("worker receive side is gone")
)
