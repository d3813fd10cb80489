// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source provides the point-in-time gauges. *cache.Engine satisfies it.
type Source interface {
	KeyCount() int
	ExpiringKeyCount() int
	Uptime() time.Duration
}

// Collector wraps the Prometheus collectors for the cache engine and
// implements cache.Observer.
type Collector struct {
	registry *prometheus.Registry
	source   atomic.Pointer[Source]

	// Counters
	commandsTotal *prometheus.CounterVec
	hitsTotal     prometheus.Counter
	missesTotal   prometheus.Counter
	expiredTotal  *prometheus.CounterVec

	// Histograms
	commandDuration *prometheus.HistogramVec
}

// Command latency buckets in seconds; engine calls are in-memory.
var defaultBuckets = []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01}

// NewCollector creates a collector with its own registry. namespace
// prefixes every metric name (e.g. "kvcache").
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total engine commands by operation and result",
			},
			[]string{"op", "result"},
		),

		hitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hits_total",
				Help:      "Key reads that found a live entry",
			},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "misses_total",
				Help:      "Key reads that found no live entry",
			},
		),

		expiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_total",
				Help:      "Expired entries reclaimed, by mechanism (lazy or sweep)",
			},
			[]string{"mechanism"},
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of engine commands in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"op"},
		),
	}

	keys := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Live keys in the store",
		},
		func() float64 { return c.gauge(func(s Source) float64 { return float64(s.KeyCount()) }) },
	)
	expiring := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expiring_keys",
			Help:      "Live keys that carry a TTL",
		},
		func() float64 { return c.gauge(func(s Source) float64 { return float64(s.ExpiringKeyCount()) }) },
	)
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the engine started",
		},
		func() float64 { return c.gauge(func(s Source) float64 { return s.Uptime().Seconds() }) },
	)

	registry.MustRegister(
		c.commandsTotal,
		c.hitsTotal,
		c.missesTotal,
		c.expiredTotal,
		c.commandDuration,
		keys,
		expiring,
		uptime,
	)
	return c
}

// Bind attaches the source for the gauges. Until a source is bound the
// gauges report zero.
func (c *Collector) Bind(src Source) {
	c.source.Store(&src)
}

func (c *Collector) gauge(read func(Source) float64) float64 {
	src := c.source.Load()
	if src == nil {
		return 0
	}
	return read(*src)
}

// ObserveCommand implements cache.Observer.
func (c *Collector) ObserveCommand(op, result string, d time.Duration) {
	c.commandsTotal.WithLabelValues(op, result).Inc()
	c.commandDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRead implements cache.Observer.
func (c *Collector) ObserveRead(hit bool) {
	if hit {
		c.hitsTotal.Inc()
		return
	}
	c.missesTotal.Inc()
}

// ObserveExpired implements cache.Observer.
func (c *Collector) ObserveExpired(mechanism string, n int) {
	if n <= 0 {
		return
	}
	c.expiredTotal.WithLabelValues(mechanism).Add(float64(n))
}

// Handler returns an HTTP handler for Prometheus scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the prometheus registry (for custom collectors)
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
