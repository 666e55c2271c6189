package mpsc

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultName            = "mpsc"
	defaultInitialCapacity = 64
	defaultShutdownTimeout = 30 * time.Second
)

// Option is a functional option for configuring a worker
type Option func(*workerOptions)

type workerOptions struct {
	name            string
	initialCapacity int
	shutdownTimeout time.Duration
	logDiscarded    bool
	logger          *slog.Logger
	registerer      prometheus.Registerer
}

func defaultOptions() *workerOptions {
	return &workerOptions{
		name:            defaultName,
		initialCapacity: defaultInitialCapacity,
		shutdownTimeout: defaultShutdownTimeout,
		logDiscarded:    true,
		logger:          slog.Default(),
	}
}

// WithName sets the worker name used in logs and as the metrics label
func WithName(name string) Option {
	return func(o *workerOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithInitialCapacity sets the initial size of the queue ring buffer.
// The queue still grows without bound; this only avoids early reallocations.
func WithInitialCapacity(n int) Option {
	return func(o *workerOptions) {
		if n > 0 {
			o.initialCapacity = n
		}
	}
}

// WithShutdownTimeout bounds the shutdown performed by Run
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger for the worker
func WithLogger(logger *slog.Logger) Option {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers worker metrics with the given Prometheus registerer
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *workerOptions) {
		o.registerer = reg
	}
}

// WithConfig applies values loaded from the environment.
// Zero values leave the corresponding defaults untouched.
func WithConfig(cfg Config) Option {
	return func(o *workerOptions) {
		WithName(cfg.Name)(o)
		WithInitialCapacity(cfg.InitialCapacity)(o)
		WithShutdownTimeout(cfg.ShutdownTimeout)(o)
		o.logDiscarded = cfg.LogDiscarded
	}
}
