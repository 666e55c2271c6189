// Package mpsc provides a single-consumer background worker: an unbounded
// multi-producer queue drained by exactly one goroutine that passes every
// message to a caller-supplied Handler.
//
// The worker turns any number of concurrent producers into one sequential,
// non-reentrant stream of handler calls. The handler therefore needs no
// synchronisation against itself, only against state it shares with
// producers.
//
// # Architecture
//
//   - Start creates the queue, spawns the drain loop and returns the first
//     Producer handle together with the Worker.
//   - Producer.Send enqueues without blocking. Producer.Clone hands out more
//     handles; every handle holds a reference on the queue and is released
//     with Producer.Close.
//   - The drain loop blocks until a message arrives or until the last handle
//     is released and the backlog is empty, then exits.
//   - Worker.Shutdown releases the handles it is given and joins the loop.
//
// Messages sent through one handle are handled in send order. There is no
// ordering between different handles.
//
// # Shutdown contract
//
// Shutdown drains: every message sent before the last handle is released is
// handled before Shutdown returns. In exchange, every handle must be
// released, either by passing it to Shutdown or by calling Close from its
// owner. A handle that is never released makes Shutdown block forever; the
// worker cannot tell a slow producer from a forgotten one. ShutdownContext
// bounds the wait and reports ErrShutdownTimeout.
//
// Stop is the fast-cancel alternative. It raises a flag and enqueues a stop
// sentinel; the loop exits after the message it is currently handling.
// Messages still queued, or sent concurrently with Stop, may be discarded and
// are reported through Stats.Dropped. Stop does not wait for producers.
//
// # Usage
//
//	p, w, err := mpsc.StartFunc(func(e AuditEvent) {
//	    store.Append(e)
//	}, mpsc.WithName("audit"))
//	if err != nil {
//	    return err
//	}
//
//	for _, src := range sources {
//	    h, _ := p.Clone()
//	    go func() {
//	        defer h.Close()
//	        for e := range src {
//	            _ = h.Send(e)
//	        }
//	    }()
//	}
//
//	// Releases p, waits for every clone to be closed and the queue drained.
//	_ = w.Shutdown(p)
//
// # Error Handling
//
// Send and Clone fail with ErrSendAfterClose once the handle is released or
// the loop has exited; the error is reported to the caller and never reaches
// the worker. Handler panics are recovered, logged and counted in
// Stats.Panics; the loop keeps running. The handler has no return value, so
// any other failure is the handler's own business.
//
// # Configuration
//
// Functional options (WithName, WithInitialCapacity, WithShutdownTimeout,
// WithLogger, WithMetrics) or a Config loaded from the environment with
// LoadConfig and applied with WithConfig.
package mpsc
