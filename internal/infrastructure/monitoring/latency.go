package monitoring

import (
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencySummary describes a latency sample in milliseconds.
type LatencySummary struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// LatencyWindow keeps the most recent N latency observations.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyWindow creates a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 1
	}
	return &LatencyWindow{samples: make([]float64, size)}
}

// Observe records one latency, evicting the oldest when full.
func (w *LatencyWindow) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Summary computes statistics over the current window.
func (w *LatencyWindow) Summary() LatencySummary {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	sorted := slices.Clone(w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencySummary{}
	}
	slices.Sort(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if n == 1 {
		std = 0
	}
	return LatencySummary{
		Count:    n,
		MeanMs:   mean,
		StdDevMs: std,
		P50Ms:    stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95Ms:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99Ms:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
		MaxMs:    sorted[n-1],
	}
}
