package stats

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency buckets in milliseconds for storage operations.
var storageBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000}

// Prometheus is a Sink backed by a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	counters *prometheus.CounterVec
	rates    *prometheus.CounterVec
	gauges   *prometheus.GaugeVec

	storageLatency *prometheus.HistogramVec
	storageBytes   *prometheus.CounterVec
	batchOps       prometheus.Histogram
}

// NewPrometheus builds the sink with its own registry, including the process
// and Go runtime collectors.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(registry)

	return &Prometheus{
		registry: registry,
		counters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_statistic_total",
				Help: "Warden counters by statistic name",
			},
			[]string{"statistic"},
		),
		rates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_events_total",
				Help: "Activity counters; apply rate() for event rates",
			},
			[]string{"event"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warden_gauge",
				Help: "Warden point-in-time values",
			},
			[]string{"gauge"},
		),
		storageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_storage_latency_ms",
				Help:    "Pebble operation latency in milliseconds",
				Buckets: storageBuckets,
			},
			[]string{"op"},
		),
		storageBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_storage_bytes_total",
				Help: "Bytes moved through Pebble",
			},
			[]string{"op"},
		),
		batchOps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_storage_batch_ops",
				Help:    "Operations per committed batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
}

func label(s string) string { return strings.ToLower(s) }

func (p *Prometheus) Increment(s Statistic) { p.counters.WithLabelValues(label(string(s))).Inc() }

func (p *Prometheus) Add(s Statistic, delta int64) {
	if delta <= 0 {
		return
	}
	p.counters.WithLabelValues(label(string(s))).Add(float64(delta))
}

func (p *Prometheus) UpdateEventRate(r EventRate) { p.rates.WithLabelValues(label(string(r))).Inc() }

func (p *Prometheus) SetGauge(g Gauge, v float64) { p.gauges.WithLabelValues(label(string(g))).Set(v) }

// Registry exposes the registry for tests and custom collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// StorageMetrics returns a hook for the Pebble wrapper.
func (p *Prometheus) StorageMetrics() *StorageMetrics { return &StorageMetrics{p: p} }

// StorageMetrics implements pebblestore.MetricsHook.
type StorageMetrics struct{ p *Prometheus }

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (m *StorageMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.p.storageLatency.WithLabelValues("write").Observe(ms(elapsed))
	m.p.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *StorageMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.p.storageLatency.WithLabelValues("read").Observe(ms(elapsed))
	m.p.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *StorageMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.p.storageLatency.WithLabelValues("commit").Observe(ms(elapsed))
	m.p.storageBytes.WithLabelValues("commit").Add(float64(bytes))
	m.p.batchOps.Observe(float64(numOps))
}
