package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsCapacity bounds the ring buffer (spec.md §4.8).
const metricsCapacity = 10000

// opSample is one recorded operation latency.
type opSample struct {
	Timestamp time.Time
	Op        string
	DurationMs float64
	UserID    string
}

// Snapshot is a point-in-time aggregate over a trailing window.
type Snapshot struct {
	TotalOps  int
	MeanMs    float64
	P50Ms     float64
	P95Ms     float64
	P99Ms     float64
	OpsPerSec float64
	ByOp      map[string]OpSnapshot
}

// OpSnapshot is the per-operation breakdown within a Snapshot.
type OpSnapshot struct {
	Count  int
	MeanMs float64
	P95Ms  float64
}

// MetricsSink is a bounded ring buffer of operation latencies with
// sliding-window percentile snapshots (spec.md §4.8). New structure: the
// teacher's internal/metrics/collector.go is Prometheus-only and has no
// in-process percentile snapshot, so the ring buffer is new, but its
// aggregates are still exported through client_golang the same way the
// teacher registers promauto vectors, so the dependency isn't dropped.
type MetricsSink struct {
	mu     sync.Mutex
	buf    []opSample
	next   int
	filled bool

	opLatency   *prometheus.HistogramVec
	opTotal     *prometheus.CounterVec
}

// NewMetricsSink builds a MetricsSink. reg may be nil to skip Prometheus
// registration entirely (e.g. in tests).
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	s := &MetricsSink{buf: make([]opSample, metricsCapacity)}
	factory := promauto.With(reg)
	s.opLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cortexmem",
		Name:      "operation_duration_ms",
		Help:      "Duration of memory engine operations in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"op"})
	s.opTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cortexmem",
		Name:      "operation_total",
		Help:      "Count of memory engine operations.",
	}, []string{"op"})
	return s
}

// Record appends a latency sample, overwriting the oldest entry once the
// ring buffer is full.
func (s *MetricsSink) Record(op, userID string, d time.Duration) {
	s.mu.Lock()
	s.buf[s.next] = opSample{Timestamp: time.Now(), Op: op, DurationMs: float64(d.Microseconds()) / 1000.0, UserID: userID}
	s.next = (s.next + 1) % metricsCapacity
	if s.next == 0 {
		s.filled = true
	}
	s.mu.Unlock()

	s.opLatency.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000.0)
	s.opTotal.WithLabelValues(op).Inc()
}

// Snapshot aggregates every sample whose Timestamp falls within window
// of now.
func (s *MetricsSink) Snapshot(window time.Duration) Snapshot {
	s.mu.Lock()
	samples := s.collect()
	s.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var inWindow []opSample
	for _, sm := range samples {
		if sm.Timestamp.After(cutoff) {
			inWindow = append(inWindow, sm)
		}
	}
	return aggregate(inWindow, window)
}

func (s *MetricsSink) collect() []opSample {
	if !s.filled {
		out := make([]opSample, s.next)
		copy(out, s.buf[:s.next])
		return out
	}
	out := make([]opSample, metricsCapacity)
	copy(out, s.buf[s.next:])
	copy(out[metricsCapacity-s.next:], s.buf[:s.next])
	return out
}

func aggregate(samples []opSample, window time.Duration) Snapshot {
	if len(samples) == 0 {
		return Snapshot{ByOp: map[string]OpSnapshot{}}
	}

	durations := make([]float64, len(samples))
	byOp := map[string][]float64{}
	var sum float64
	for i, sm := range samples {
		durations[i] = sm.DurationMs
		sum += sm.DurationMs
		byOp[sm.Op] = append(byOp[sm.Op], sm.DurationMs)
	}
	sort.Float64s(durations)

	opSnaps := make(map[string]OpSnapshot, len(byOp))
	for op, ds := range byOp {
		sort.Float64s(ds)
		var opSum float64
		for _, d := range ds {
			opSum += d
		}
		opSnaps[op] = OpSnapshot{
			Count:  len(ds),
			MeanMs: opSum / float64(len(ds)),
			P95Ms:  percentile(ds, 0.95),
		}
	}

	seconds := window.Seconds()
	opsPerSec := 0.0
	if seconds > 0 {
		opsPerSec = float64(len(samples)) / seconds
	}

	return Snapshot{
		TotalOps:  len(samples),
		MeanMs:    sum / float64(len(samples)),
		P50Ms:     percentile(durations, 0.50),
		P95Ms:     percentile(durations, 0.95),
		P99Ms:     percentile(durations, 0.99),
		OpsPerSec: opsPerSec,
		ByOp:      opSnaps,
	}
}

// percentile expects sorted ascending input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
