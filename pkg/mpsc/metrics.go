package mpsc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// workerMetrics holds Prometheus collectors for a single worker.
// A nil *workerMetrics is valid and records nothing.
type workerMetrics struct {
	enqueued        prometheus.Counter
	processed       prometheus.Counter
	dropped         prometheus.Counter
	panics          prometheus.Counter
	queueDepth      prometheus.Gauge
	liveProducers   prometheus.Gauge
	handlerDuration prometheus.Histogram
}

// newWorkerMetrics creates the worker collectors and registers them with reg.
// Collectors are labelled with the worker name so several workers can share
// one registry.
func newWorkerMetrics(reg prometheus.Registerer, name string) (*workerMetrics, error) {
	labels := prometheus.Labels{"worker": name}

	m := &workerMetrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "enqueued_total",
			ConstLabels: labels,
			Help:        "Total number of messages accepted by producer handles",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "processed_total",
			ConstLabels: labels,
			Help:        "Total number of messages passed to the handler",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "dropped_total",
			ConstLabels: labels,
			Help:        "Total number of queued messages discarded by Stop",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "handler_panics_total",
			ConstLabels: labels,
			Help:        "Total number of recovered handler panics",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "queue_depth",
			ConstLabels: labels,
			Help:        "Current number of messages waiting for the handler",
		}),
		liveProducers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "live_producers",
			ConstLabels: labels,
			Help:        "Current number of unreleased producer handles",
		}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "mpsc",
			Subsystem:   "worker",
			Name:        "handler_duration_seconds",
			ConstLabels: labels,
			Help:        "Time spent in a single handler invocation",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	collectors := []prometheus.Collector{
		m.enqueued,
		m.processed,
		m.dropped,
		m.panics,
		m.queueDepth,
		m.liveProducers,
		m.handlerDuration,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Roll back so the worker name can be reused after fixing the conflict
			for _, registered := range collectors[:i] {
				reg.Unregister(registered)
			}
			return nil, errors.Join(ErrMetricsRegistration, err)
		}
	}

	return m, nil
}

func (m *workerMetrics) recordEnqueue(depth int) {
	if m == nil {
		return
	}
	m.enqueued.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *workerMetrics) setDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *workerMetrics) setProducers(n int) {
	if m == nil {
		return
	}
	m.liveProducers.Set(float64(n))
}

func (m *workerMetrics) recordProcessed(d time.Duration) {
	if m == nil {
		return
	}
	m.processed.Inc()
	m.handlerDuration.Observe(d.Seconds())
}

func (m *workerMetrics) recordPanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

func (m *workerMetrics) recordDropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.Add(float64(n))
}
