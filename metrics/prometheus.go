package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vecforge"

// PrometheusCollector exports lifecycle metrics through client_golang.
type PrometheusCollector struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	vectors    prometheus.Counter
	bytes      *prometheus.CounterVec
	jobs       *prometheus.CounterVec
	jobSeconds prometheus.Observer
}

// NewPrometheusCollector creates the collectors and registers them on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	jobSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of index build jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	p := &PrometheusCollector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of lifecycle operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		}, []string{"op"}),
		vectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_vectors_total",
			Help:      "Vectors placed into successfully built graphs.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serialized_bytes_total",
			Help:      "Encoded index bytes written or read.",
		}, []string{"direction"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Build jobs by terminal status.",
		}, []string{"status"}),
		jobSeconds: jobSeconds,
	}

	for _, c := range []prometheus.Collector{p.operations, p.durations, p.vectors, p.bytes, p.jobs, jobSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *PrometheusCollector) observe(op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.operations.WithLabelValues(op, outcome).Inc()
	p.durations.WithLabelValues(op).Observe(d.Seconds())
}

// RecordBuild implements Collector.
func (p *PrometheusCollector) RecordBuild(n int, d time.Duration, err error) {
	p.observe("build", d, err)
	if err == nil {
		p.vectors.Add(float64(n))
	}
}

// RecordTransfer implements Collector.
func (p *PrometheusCollector) RecordTransfer(_ int, d time.Duration, err error) {
	p.observe("transfer", d, err)
}

// RecordSave implements Collector.
func (p *PrometheusCollector) RecordSave(bytes int64, d time.Duration, err error) {
	p.observe("save", d, err)
	if err == nil {
		p.bytes.WithLabelValues("write").Add(float64(bytes))
	}
}

// RecordLoad implements Collector.
func (p *PrometheusCollector) RecordLoad(bytes int64, d time.Duration, err error) {
	p.observe("load", d, err)
	if err == nil {
		p.bytes.WithLabelValues("read").Add(float64(bytes))
	}
}

// RecordSearch implements Collector.
func (p *PrometheusCollector) RecordSearch(_ int, d time.Duration, err error) {
	p.observe("search", d, err)
}

// RecordJob implements Collector.
func (p *PrometheusCollector) RecordJob(status string, d time.Duration) {
	p.jobs.WithLabelValues(status).Inc()
	p.jobSeconds.Observe(d.Seconds())
}
