package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedme"

// Metrics collects timings and counters of a single run. When created with
// a path, Close writes them in the Prometheus textfile format so a node
// exporter can pick them up after the batch has finished.
type Metrics struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	counters  *prometheus.CounterVec
	path      string
}

func NewMetrics(path string) *Metrics {
	registry := prometheus.NewRegistry()

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of feedme operations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"operation"})
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Number of feedme events.",
	}, []string{"event"})

	registry.MustRegister(durations, counters)

	return &Metrics{
		registry:  registry,
		durations: durations,
		counters:  counters,
		path:      path,
	}
}

func NoMetrics() *Metrics {
	return &Metrics{}
}

func (x *Metrics) Close() error {
	if x == nil || x.registry == nil || x.path == "" {
		return nil
	}

	return prometheus.WriteToTextfile(x.path, x.registry)
}

func (x *Metrics) Record(metricName string) func() error {
	if x != nil && x.durations != nil {
		start := time.Now()
		observer := x.durations.WithLabelValues(metricName)

		return func() error {
			observer.Observe(time.Since(start).Seconds())
			return nil
		}
	}

	return func() error { return nil }
}

func (x *Metrics) Increment(metricName string) error {
	if x != nil && x.counters != nil {
		x.counters.WithLabelValues(metricName).Inc()
	}

	return nil
}
