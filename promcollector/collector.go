// Package promcollector reports store metrics to Prometheus.
//
//	pc := promcollector.New()
//	_ = pc.Register(prometheus.DefaultRegisterer)
//	store, _ := shardvec.New(384, shardvec.WithMetricsCollector(pc))
package promcollector

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/shardvec"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "shardvec"

var _ shardvec.MetricsCollector = (*Collector)(nil)

// Options configures a Collector.
type Options struct {
	// Namespace prefixes metric names. Defaults to DefaultNamespace.
	Namespace string
	// ConstLabels are attached to every metric, e.g. a store name.
	ConstLabels prometheus.Labels
	// Buckets for the latency histograms. Defaults to prometheus.DefBuckets.
	Buckets []float64
}

// Collector implements shardvec.MetricsCollector with Prometheus metrics.
//
// Shard ids are not used as labels; the number of shards is unbounded.
type Collector struct {
	opLatency      *prometheus.HistogramVec
	activations    *prometheus.CounterVec
	activationTime prometheus.Histogram
	evictions      *prometheus.CounterVec
	searchTimeouts prometheus.Counter
	searchLimit    prometheus.Histogram
	activeShards   prometheus.Gauge
	residentBytes  prometheus.Gauge
}

// New creates a Collector. Call Register to expose it.
func New(optFns ...func(o *Options)) *Collector {
	opts := Options{
		Namespace: DefaultNamespace,
		Buckets:   prometheus.DefBuckets,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "operation_duration_seconds",
			Help:        "Latency of store operations",
			ConstLabels: opts.ConstLabels,
			Buckets:     opts.Buckets,
		}, []string{"op", "status"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "shard_activations_total",
			Help:        "Shards loaded back into memory",
			ConstLabels: opts.ConstLabels,
		}, []string{"status"}),
		activationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "shard_activation_duration_seconds",
			Help:        "Time to read and decode an inactive shard",
			ConstLabels: opts.ConstLabels,
			Buckets:     opts.Buckets,
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "shard_evictions_total",
			Help:        "Shards unloaded from memory",
			ConstLabels: opts.ConstLabels,
		}, []string{"spilled"}),
		searchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "search_task_timeouts_total",
			Help:        "Shard search tasks abandoned after the search timeout",
			ConstLabels: opts.ConstLabels,
		}),
		searchLimit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "search_limit",
			Help:        "Number of results requested per search",
			ConstLabels: opts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 6),
		}),
		activeShards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "active_shards",
			Help:        "Shards currently resident in memory",
			ConstLabels: opts.ConstLabels,
		}),
		residentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "resident_bytes",
			Help:        "Estimated memory held by resident shards",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// Register registers all metrics with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, m := range c.collectors() {
		if err := reg.Register(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustRegister is like Register but panics on error.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.collectors()...)
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.opLatency,
		c.activations,
		c.activationTime,
		c.evictions,
		c.searchTimeouts,
		c.searchLimit,
		c.activeShards,
		c.residentBytes,
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// RecordAdd implements shardvec.MetricsCollector.
func (c *Collector) RecordAdd(d time.Duration, err error) { c.observe("add", d, err) }

// RecordGet implements shardvec.MetricsCollector.
func (c *Collector) RecordGet(d time.Duration, err error) { c.observe("get", d, err) }

// RecordDelete implements shardvec.MetricsCollector.
func (c *Collector) RecordDelete(d time.Duration, err error) { c.observe("delete", d, err) }

// RecordSearch implements shardvec.MetricsCollector.
func (c *Collector) RecordSearch(limit int, d time.Duration, err error) {
	c.observe("search", d, err)
	if err == nil {
		c.searchLimit.Observe(float64(limit))
	}
}

// RecordActivation implements shardvec.MetricsCollector.
func (c *Collector) RecordActivation(_ string, d time.Duration, err error) {
	c.activations.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.activationTime.Observe(d.Seconds())
	}
}

// RecordEviction implements shardvec.MetricsCollector.
func (c *Collector) RecordEviction(_ string, spilled bool) {
	c.evictions.WithLabelValues(strconv.FormatBool(spilled)).Inc()
}

// RecordSearchTimeout implements shardvec.MetricsCollector.
func (c *Collector) RecordSearchTimeout(string) {
	c.searchTimeouts.Inc()
}

// RecordResidency implements shardvec.MetricsCollector.
func (c *Collector) RecordResidency(activeShards int, residentBytes int64) {
	c.activeShards.Set(float64(activeShards))
	c.residentBytes.Set(float64(residentBytes))
}
