package mpsc_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mpsc/pkg/logger"
	"github.com/dmitrymomot/mpsc/pkg/mpsc"
)

// collector records handled values in the order the worker delivers them.
// No locking is needed for appends: the worker never calls it concurrently.
type collector[T any] struct {
	values []T
}

func (c *collector[T]) Handle(v T) {
	c.values = append(c.values, v)
}

func startCollector[T any](t *testing.T, opts ...mpsc.Option) (*mpsc.Producer[T], *mpsc.Worker[T], *collector[T]) {
	t.Helper()

	c := &collector[T]{}
	opts = append([]mpsc.Option{mpsc.WithLogger(logger.Nop())}, opts...)
	p, w, err := mpsc.Start[T](c, opts...)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, w)
	return p, w, c
}

func TestStart(t *testing.T) {
	t.Parallel()

	t.Run("nil handler", func(t *testing.T) {
		t.Parallel()

		p, w, err := mpsc.Start[int](nil)
		assert.ErrorIs(t, err, mpsc.ErrHandlerNil)
		assert.Nil(t, p)
		assert.Nil(t, w)
	})

	t.Run("nil handler func", func(t *testing.T) {
		t.Parallel()

		_, _, err := mpsc.StartFunc[int](nil)
		assert.ErrorIs(t, err, mpsc.ErrHandlerNil)
	})

	t.Run("running after start", func(t *testing.T) {
		t.Parallel()

		p, w, _ := startCollector[int](t, mpsc.WithName("audit"))
		assert.Equal(t, mpsc.StateRunning, w.State())
		assert.Equal(t, "audit", w.Name())
		assert.NotEqual(t, [16]byte{}, [16]byte(w.ID()))
		assert.Equal(t, 1, w.Stats().Producers)

		select {
		case <-w.Done():
			t.Fatal("worker exited before shutdown")
		default:
		}

		require.NoError(t, w.Shutdown(p))
	})

	t.Run("no handle released means no exit", func(t *testing.T) {
		t.Parallel()

		p, w, _ := startCollector[int](t)

		// An idle worker with a live handle keeps waiting for input
		select {
		case <-w.Done():
			t.Fatal("worker exited while a producer handle is alive")
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(t, w.Shutdown(p))
	})
}

func TestWorker_SingleProducerNoLoss(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 10, 1000} {
		p, w, c := startCollector[int](t, mpsc.WithInitialCapacity(4))

		for i := range n {
			require.NoError(t, p.Send(i))
		}
		require.NoError(t, w.Shutdown(p))

		require.Len(t, c.values, n)
		for i, v := range c.values {
			require.Equal(t, i, v, "message %d out of order", i)
		}

		stats := w.Stats()
		assert.Equal(t, uint64(n), stats.Enqueued)
		assert.Equal(t, uint64(n), stats.Processed)
		assert.Zero(t, stats.Dropped)
		assert.Zero(t, stats.Pending)
		assert.Zero(t, stats.Producers)
	}
}

func TestWorker_HighVolume(t *testing.T) {
	t.Parallel()

	const n = 100_000

	p, w, c := startCollector[uint64](t)
	for i := range uint64(n) {
		require.NoError(t, p.Send(i))
	}
	require.NoError(t, w.Shutdown(p))

	require.Len(t, c.values, n)
	for i, v := range c.values {
		if uint64(i) != v {
			t.Fatalf("message %d: got %d", i, v)
		}
	}
}

func TestWorker_MultipleProducersSum(t *testing.T) {
	t.Parallel()

	const (
		producers = 8
		perProd   = 5_000
	)

	var sum int64
	p, w, err := mpsc.StartFunc(func(v int64) {
		// Plain addition is safe: handler calls never overlap
		sum += v
	}, mpsc.WithLogger(logger.Nop()))
	require.NoError(t, err)

	handles := make([]*mpsc.Producer[int64], producers)
	for i := range handles {
		h, err := p.Clone()
		require.NoError(t, err)
		handles[i] = h
	}

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			for i := range int64(perProd) {
				if err := h.Send(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, w.Shutdown(append(handles, p)...))

	assert.Equal(t, int64(producers*perProd*(perProd-1)/2), sum)
	assert.Equal(t, uint64(producers*perProd), w.Stats().Processed)
}

func TestWorker_PerProducerFIFO(t *testing.T) {
	t.Parallel()

	type msg struct {
		producer int
		seq      int
	}

	const (
		producers = 4
		perProd   = 2_000
	)

	p, w, c := startCollector[msg](t)

	var g errgroup.Group
	for id := range producers {
		h, err := p.Clone()
		require.NoError(t, err)
		g.Go(func() error {
			defer h.Close()
			for seq := range perProd {
				if err := h.Send(msg{producer: id, seq: seq}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, w.Shutdown(p))

	require.Len(t, c.values, producers*perProd)
	next := make([]int, producers)
	for _, m := range c.values {
		require.Equal(t, next[m.producer], m.seq, "producer %d out of order", m.producer)
		next[m.producer]++
	}
}

func TestWorker_AtMostOneActiveHandler(t *testing.T) {
	t.Parallel()

	var (
		active     atomic.Int32
		reentered  atomic.Bool
		invocation atomic.Int64
	)

	p, w, err := mpsc.StartFunc(func(int) {
		if active.Add(1) != 1 {
			reentered.Store(true)
		}
		if invocation.Add(1)%64 == 0 {
			// Widen the window for an overlapping call
			time.Sleep(time.Millisecond)
		}
		active.Add(-1)
	}, mpsc.WithLogger(logger.Nop()))
	require.NoError(t, err)

	var g errgroup.Group
	for range 8 {
		h, err := p.Clone()
		require.NoError(t, err)
		g.Go(func() error {
			defer h.Close()
			for i := range 1_000 {
				if err := h.Send(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, w.Shutdown(p))

	assert.False(t, reentered.Load(), "handler was invoked concurrently")
	assert.Equal(t, int64(8_000), invocation.Load())
}

func TestWorker_ShutdownBlocksUntilDrained(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var handled atomic.Int64

	p, w, err := mpsc.StartFunc(func(int) {
		<-release
		handled.Add(1)
	}, mpsc.WithLogger(logger.Nop()))
	require.NoError(t, err)

	for i := range 10 {
		require.NoError(t, p.Send(i))
	}

	returned := make(chan error, 1)
	go func() {
		returned <- w.Shutdown(p)
	}()

	require.Eventually(t, func() bool {
		return w.State() == mpsc.StateShuttingDown
	}, time.Second, time.Millisecond)

	select {
	case <-returned:
		t.Fatal("shutdown returned while messages were still queued")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}

	assert.Equal(t, int64(10), handled.Load())
	assert.Equal(t, mpsc.StateStopped, w.State())

	select {
	case <-w.Done():
	default:
		t.Fatal("done channel not closed after shutdown")
	}
}

func TestWorker_ShutdownIsTerminal(t *testing.T) {
	t.Parallel()

	p, w, _ := startCollector[int](t)
	require.NoError(t, w.Shutdown(p))

	assert.ErrorIs(t, w.Shutdown(), mpsc.ErrAlreadyShutdown)
	assert.ErrorIs(t, w.Stop(), mpsc.ErrAlreadyShutdown)
	assert.ErrorIs(t, w.ShutdownContext(context.Background()), mpsc.ErrAlreadyShutdown)
}

func TestWorker_ImplicitRelease(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[int]int{}

	p, w, err := mpsc.StartFunc(func(v int) {
		mu.Lock()
		seen[v]++
		mu.Unlock()
	}, mpsc.WithLogger(logger.Nop()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for id := range 4 {
		h, err := p.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.Close()
			for i := range 100 {
				_ = h.Send(id*100 + i)
			}
		}()
	}

	// The owner drops its own handle; producers release theirs independently
	require.NoError(t, p.Close())

	done := make(chan error, 1)
	go func() { done <- w.Shutdown() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete after every handle was released")
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 400)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d handled %d times", v, n)
	}
}

func TestWorker_ShutdownWaitsForOutstandingHandle(t *testing.T) {
	t.Parallel()

	p, w, c := startCollector[int](t)
	h, err := p.Clone()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = w.ShutdownContext(ctx, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, mpsc.ErrShutdownTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, mpsc.StateShuttingDown, w.State())

	// The outstanding handle still works and its messages are still drained
	require.NoError(t, h.Send(7))
	require.NoError(t, h.Close())

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after the last handle was released")
	}
	assert.Equal(t, []int{7}, c.values)
}

func TestWorker_ShutdownTimeoutIsLogged(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	p, w, err := mpsc.StartFunc(func(int) {}, mpsc.WithName("audit"), mpsc.WithLogger(logger.New(logger.WithOutput(buf))))
	require.NoError(t, err)
	h, err := p.Clone()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ctx = logger.ContextWithAttrs(ctx, logger.Component("deploy"))

	require.ErrorIs(t, w.ShutdownContext(ctx, p), mpsc.ErrShutdownTimeout)
	require.NoError(t, h.Close())
	<-w.Done()

	out := buf.String()
	assert.Contains(t, out, "worker shutdown timed out")
	assert.Contains(t, out, `"component":"deploy"`)
	assert.Contains(t, out, `"producers":1`)
}

func TestWorker_ForeignProducer(t *testing.T) {
	t.Parallel()

	p1, w1, _ := startCollector[int](t)
	p2, w2, _ := startCollector[int](t)

	assert.ErrorIs(t, w1.Shutdown(p2), mpsc.ErrForeignProducer)
	assert.Equal(t, mpsc.StateRunning, w1.State(), "rejected shutdown must not consume the worker")
	assert.False(t, p2.Released())

	require.NoError(t, w1.Shutdown(p1))
	require.NoError(t, w2.Shutdown(p2))
}

func TestWorker_SendAfterShutdown(t *testing.T) {
	t.Parallel()

	p, w, _ := startCollector[int](t)
	require.NoError(t, w.Shutdown(p))

	err := p.Send(1)
	assert.ErrorIs(t, err, mpsc.ErrSendAfterClose)

	_, err = p.Clone()
	assert.ErrorIs(t, err, mpsc.ErrSendAfterClose)
}

func TestWorker_Stop(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var handled atomic.Int64

	p, w, err := mpsc.StartFunc(func(v int) {
		if v == 0 {
			close(started)
			<-release
		}
		handled.Add(1)
	}, mpsc.WithLogger(logger.Nop()))
	require.NoError(t, err)

	for i := range 10 {
		require.NoError(t, p.Send(i))
	}
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	require.Eventually(t, func() bool {
		return w.State() == mpsc.StateShuttingDown
	}, time.Second, time.Millisecond)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	// The in-flight message completes; the backlog is discarded
	assert.Equal(t, int64(1), handled.Load())
	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(9), stats.Dropped)
	assert.Zero(t, stats.Pending)
	assert.Equal(t, mpsc.StateStopped, w.State())

	// The handle is still alive but the receive side is gone
	err = p.Send(11)
	assert.ErrorIs(t, err, mpsc.ErrSendAfterClose)
	assert.False(t, p.Released())
	require.NoError(t, p.Close())
}

func TestWorker_StopIdle(t *testing.T) {
	t.Parallel()

	p, w, c := startCollector[int](t)
	h, err := p.Clone()
	require.NoError(t, err)

	// Stop does not wait for outstanding handles
	require.NoError(t, w.Stop())
	assert.Empty(t, c.values)
	assert.ErrorIs(t, h.Send(1), mpsc.ErrSendAfterClose)
}

func TestWorker_HandlerPanic(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	var handled []int

	p, w, err := mpsc.StartFunc(func(v int) {
		if v == 2 {
			panic(errors.New("boom"))
		}
		handled = append(handled, v)
	}, mpsc.WithLogger(logger.New(logger.WithOutput(buf))))
	require.NoError(t, err)

	for i := range 4 {
		require.NoError(t, p.Send(i))
	}
	require.NoError(t, w.Shutdown(p))

	assert.Equal(t, []int{0, 1, 3}, handled)
	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Panics)
	assert.Equal(t, uint64(4), stats.Processed)
	assert.Contains(t, buf.String(), "handler panicked")
	assert.Contains(t, buf.String(), "boom")
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	p, w, c := startCollector[string](t, mpsc.WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(w.Run(gctx, p))

	h, err := p.Clone()
	require.NoError(t, err)
	g.Go(func() error {
		defer h.Close()
		for _, s := range []string{"a", "b", "c"} {
			if err := h.Send(s); err != nil {
				return err
			}
		}
		return nil
	})

	require.Eventually(t, func() bool {
		return w.Stats().Enqueued == 3
	}, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, g.Wait())
	assert.Equal(t, []string{"a", "b", "c"}, c.values)
	assert.Equal(t, mpsc.StateStopped, w.State())
}

func TestWorker_RunTimesOut(t *testing.T) {
	t.Parallel()

	p, w, _ := startCollector[int](t, mpsc.WithShutdownTimeout(20*time.Millisecond))
	h, err := p.Clone()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = w.Run(ctx, p)()
	assert.ErrorIs(t, err, mpsc.ErrShutdownTimeout)

	require.NoError(t, h.Close())
	<-w.Done()
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "running", mpsc.StateRunning.String())
	assert.Equal(t, "shutting_down", mpsc.StateShuttingDown.String())
	assert.Equal(t, "stopped", mpsc.StateStopped.String())
	assert.Equal(t, "State(9)", mpsc.State(9).String())
}
