// Package metrics exposes Prometheus metrics for file I/O and table
// operations: bytes moved, stripes and pages decoded, codec timings.
//
// Metrics are registered once at package init through promauto. Components
// record through the package-level vectors, labeled by file format:
//
//	metrics.BytesRead.WithLabelValues("orc").Add(float64(n))
//
//	timer := metrics.NewTimer()
//	decodeStripe(...)
//	metrics.DecodeDuration.WithLabelValues("orc").Observe(timer.Stop().Seconds())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BytesRead counts compressed bytes read from data sources.
	// Labels: format (orc/parquet)
	BytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_bytes_read_total",
			Help: "Compressed bytes read from data sources",
		},
		[]string{"format"},
	)

	// BytesWritten counts bytes written to data sinks.
	// Labels: format (orc/parquet)
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_bytes_written_total",
			Help: "Bytes written to data sinks",
		},
		[]string{"format"},
	)

	// RowsRead counts rows materialized into tables.
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_rows_read_total",
			Help: "Rows materialized from files",
		},
		[]string{"format"},
	)

	// RowsWritten counts rows encoded into files.
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_rows_written_total",
			Help: "Rows encoded into files",
		},
		[]string{"format"},
	)

	// UnitsDecoded counts decoded storage units: stripes for ORC, row
	// groups for Parquet.
	UnitsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_units_decoded_total",
			Help: "Storage units (stripes, row groups) decoded",
		},
		[]string{"format"},
	)

	// DecodeDuration tracks per-unit decode latency in seconds.
	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stratum_decode_duration_seconds",
			Help: "Per-unit decode latency",
			Buckets: []float64{
				1e-5, // 10μs - tiny stripes
				1e-4, // 100μs
				1e-3, // 1ms
				1e-2, // 10ms - typical stripe
				1e-1, // 100ms
				1,    // 1s - large compressed stripes
				10,   // 10s
			},
		},
		[]string{"format"},
	)

	// EncodeDuration tracks per-unit encode latency in seconds.
	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stratum_encode_duration_seconds",
			Help: "Per-unit encode latency",
			Buckets: []float64{1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1, 10},
		},
		[]string{"format"},
	)

	// PoolMemoryInUse reports bytes currently held by memory resources.
	PoolMemoryInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_pool_memory_in_use_bytes",
			Help: "Bytes currently allocated from memory resources",
		},
		[]string{"resource"},
	)
)

// ResourceUsage is the slice of a memory resource the gauge needs.
type ResourceUsage interface {
	Name() string
	OutstandingBytes() int64
}

// ObserveResource publishes a resource's outstanding bytes.
func ObserveResource(r ResourceUsage) {
	PoolMemoryInUse.WithLabelValues(r.Name()).Set(float64(r.OutstandingBytes()))
}

// Timer measures one operation's wall time.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since creation. Stopping more than once
// returns the total elapsed time each call.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker computes rows per second over reset windows.
// Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewThroughputTracker creates a tracker with the window starting now.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now()}
}

// Increment adds n rows to the current window.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the rows per second of the current window and
// starts a new one.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	rate := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()
	return rate
}
