// Package metrics counts replicated records per logical stream and reports
// throughput. Counters are exported through Prometheus; completion and rate
// lines go to the structured log.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Recorder tracks per-stream record counts for one run. It satisfies
// streams.Recorder.
type Recorder struct {
	records    *prometheus.CounterVec
	childTotal *prometheus.GaugeVec
	throughput *prometheus.GaugeVec
	duration   *prometheus.HistogramVec

	mu       sync.Mutex
	counts   map[string]int64
	started  map[string]time.Time
	runStart time.Time
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecorder registers the record metrics with reg. A nil reg uses a
// private registry so repeated construction never panics.
func NewRecorder(reg prometheus.Registerer, logger *zap.Logger) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	r := &Recorder{
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketsync_records_total",
				Help: "Total number of records emitted",
			},
			[]string{"stream"},
		),
		childTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ticketsync_child_records",
				Help: "Records emitted by a child stream during its parent's last sync",
			},
			[]string{"stream"},
		),
		throughput: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ticketsync_throughput_records_per_second",
				Help: "Record throughput of the last completed stream sync",
			},
			[]string{"stream"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketsync_stream_sync_duration_seconds",
				Help:    "Wall time of a stream sync",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"stream"},
		),
		counts:  make(map[string]int64),
		started: make(map[string]time.Time),
		logger:  logger.With(zap.String("component", "metrics")),
		now:     time.Now,
	}
	r.runStart = r.now()
	return r
}

// Capture counts one record for stream.
func (r *Recorder) Capture(stream string) {
	r.records.WithLabelValues(stream).Inc()

	r.mu.Lock()
	r.counts[stream]++
	if _, ok := r.started[stream]; !ok {
		r.started[stream] = r.now()
	}
	r.mu.Unlock()
}

// RecordCount reports the aggregate count of a child stream after its parent finished.
func (r *Recorder) RecordCount(stream string, count int64) {
	r.childTotal.WithLabelValues(stream).Set(float64(count))
	r.logger.Info("METRIC",
		zap.String("type", "counter"),
		zap.String("metric", "record_count"),
		zap.Int64("value", count),
		zap.String("endpoint", stream))
}

// Start marks the beginning of a stream sync.
func (r *Recorder) Start(stream string) {
	r.mu.Lock()
	r.started[stream] = r.now()
	r.mu.Unlock()
}

// Count returns the records captured for stream in this run.
func (r *Recorder) Count(stream string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[stream]
}

// LogAggregateRates logs the throughput of stream since Start and exports it.
func (r *Recorder) LogAggregateRates(stream string) {
	r.mu.Lock()
	count := r.counts[stream]
	start, ok := r.started[stream]
	r.mu.Unlock()
	if !ok {
		start = r.runStart
	}

	elapsed := r.now().Sub(start)
	rate := ratePerSecond(count, elapsed)
	r.throughput.WithLabelValues(stream).Set(rate)
	r.duration.WithLabelValues(stream).Observe(elapsed.Seconds())

	r.logger.Info("aggregate rate",
		zap.String("stream", stream),
		zap.Int64("records", count),
		zap.Duration("duration", elapsed),
		zap.Float64("records_per_second", rate))
}

// LogRunRates logs the per-stream totals and overall throughput of the run.
func (r *Recorder) LogRunRates() {
	r.mu.Lock()
	names := make([]string, 0, len(r.counts))
	var total int64
	for name, n := range r.counts {
		names = append(names, name)
		total += n
	}
	counts := make(map[string]int64, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	r.mu.Unlock()
	sort.Strings(names)

	fields := make([]zap.Field, 0, len(names)+3)
	for _, name := range names {
		fields = append(fields, zap.Int64(name, counts[name]))
	}
	elapsed := r.now().Sub(r.runStart)
	fields = append(fields,
		zap.Int64("total_records", total),
		zap.Duration("duration", elapsed),
		zap.Float64("records_per_second", ratePerSecond(total, elapsed)))
	r.logger.Info("run totals", fields...)
}

func ratePerSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
