package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks gateway throughput and REST latency.
type Metrics struct {
	RestLatency *LatencyHistogram

	ticks       uint64
	orderEvents uint64
	rejections  uint64
	reconnects  uint64

	started time.Time
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		RestLatency: NewLatencyHistogram(1000),
		started:     time.Now(),
	}
}

func (m *Metrics) TickObserved()       { atomic.AddUint64(&m.ticks, 1) }
func (m *Metrics) OrderEventObserved() { atomic.AddUint64(&m.orderEvents, 1) }
func (m *Metrics) RejectionObserved()  { atomic.AddUint64(&m.rejections, 1) }
func (m *Metrics) ReconnectObserved()  { atomic.AddUint64(&m.reconnects, 1) }

// Snapshot is a point-in-time view for the ops API.
type Snapshot struct {
	UptimeSeconds float64      `json:"uptimeSeconds"`
	Ticks         uint64       `json:"ticks"`
	OrderEvents   uint64       `json:"orderEvents"`
	Rejections    uint64       `json:"rejections"`
	Reconnects    uint64       `json:"reconnects"`
	RestLatencyMs LatencyStats `json:"restLatencyMs"`
}

// Snapshot returns current counters and latency stats.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds: time.Since(m.started).Seconds(),
		Ticks:         atomic.LoadUint64(&m.ticks),
		OrderEvents:   atomic.LoadUint64(&m.orderEvents),
		Rejections:    atomic.LoadUint64(&m.rejections),
		Reconnects:    atomic.LoadUint64(&m.reconnects),
		RestLatencyMs: m.RestLatency.Stats(),
	}
}

// LatencyStats summarizes a latency window in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// LatencyHistogram tracks latency samples in a sliding window. Stats are
// recomputed lazily, only when samples changed since the last call.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// Stats computes percentile statistics over the current window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return h.cachedStats
	}
	if len(h.samples) == 0 {
		h.cachedStats = LatencyStats{}
		h.dirty = false
		return h.cachedStats
	}

	sorted := append([]float64(nil), h.samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	h.cachedStats = LatencyStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
	h.dirty = false
	return h.cachedStats
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
