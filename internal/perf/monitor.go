// Package perf provides rolling-window latency/memory instrumentation with
// percentile reporting. Recording is a short critical section and never
// blocks or fails on the measured path.
package perf

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"execsim/internal/domain"
)

// DefaultCapacity is the per-kind ring buffer size.
const DefaultCapacity = 1000

// Sample is one recorded measurement.
type Sample struct {
	Timestamp time.Time
	Value     float64
	Kind      domain.MetricKind
}

// Stats summarizes the current buffer contents for one metric kind.
// Percentiles use linear interpolation over the sorted samples.
type Stats struct {
	Min   float64
	Max   float64
	Mean  float64
	P95   float64
	P99   float64
	Count int
}

// Row is one flat export record: (timestamp, kind, value, optional metadata).
type Row struct {
	Timestamp time.Time
	Kind      domain.MetricKind
	Value     float64
	Metadata  string
}

// Monitor holds one fixed-capacity ring buffer per metric kind. Created once
// at process start and passed by handle to every component that records.
type Monitor struct {
	capacity int

	mu    sync.RWMutex
	rings map[domain.MetricKind]*ring

	proc *process.Process
}

type ring struct {
	mu      sync.Mutex
	samples []Sample
	head    int
	count   int
}

// NewMonitor creates a monitor. capacity <= 0 selects DefaultCapacity.
func NewMonitor(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Monitor{
		capacity: capacity,
		rings:    make(map[domain.MetricKind]*ring),
	}
	for _, kind := range []domain.MetricKind{domain.MetricProcessing, domain.MetricRender, domain.MetricMemory} {
		m.rings[kind] = &ring{samples: make([]Sample, capacity)}
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = proc
	}
	return m
}

func (m *Monitor) ring(kind domain.MetricKind) *ring {
	m.mu.RLock()
	r, ok := m.rings[kind]
	m.mu.RUnlock()
	if ok {
		return r
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.rings[kind]; ok {
		return r
	}
	r = &ring{samples: make([]Sample, m.capacity)}
	m.rings[kind] = r
	return r
}

// Record appends a sample, evicting the oldest on overflow (FIFO).
func (m *Monitor) Record(kind domain.MetricKind, value float64) {
	r := m.ring(kind)
	sample := Sample{Timestamp: time.Now(), Value: value, Kind: kind}

	r.mu.Lock()
	r.samples[r.head] = sample
	r.head = (r.head + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
	r.mu.Unlock()
}

// Start begins timing one operation; the returned func records the elapsed
// milliseconds under the given kind.
func (m *Monitor) Start(kind domain.MetricKind) func() {
	begin := time.Now()
	return func() {
		m.Record(kind, float64(time.Since(begin).Microseconds())/1000.0)
	}
}

// Report computes min/max/mean/p95/p99 over the current buffer contents.
// An empty buffer yields the zero Stats, not an error.
func (m *Monitor) Report(kind domain.MetricKind) Stats {
	values := m.values(kind)
	if len(values) == 0 {
		return Stats{}
	}

	sort.Float64s(values)
	stats := Stats{
		Min:   values[0],
		Max:   values[len(values)-1],
		Count: len(values),
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	stats.Mean = sum / float64(len(values))
	stats.P95 = percentile(values, 95)
	stats.P99 = percentile(values, 99)
	return stats
}

func (m *Monitor) values(kind domain.MetricKind) []float64 {
	r := m.ring(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	values := make([]float64, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - r.count + i + len(r.samples)) % len(r.samples)
		values = append(values, r.samples[idx].Value)
	}
	return values
}

// percentile interpolates linearly at index p·(n−1) of the sorted samples.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// SampleMemory records the current process RSS in MiB.
func (m *Monitor) SampleMemory() {
	if m.proc == nil {
		return
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return
	}
	m.Record(domain.MetricMemory, float64(info.RSS)/1024/1024)
}

// RunMemorySampler samples RSS on the given interval until ctx is cancelled.
func (m *Monitor) RunMemorySampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SampleMemory()
		}
	}
}

// Export returns all buffered samples as flat rows ordered by timestamp,
// oldest first, suitable for tabular export.
func (m *Monitor) Export() []Row {
	m.mu.RLock()
	kinds := make([]domain.MetricKind, 0, len(m.rings))
	for kind := range m.rings {
		kinds = append(kinds, kind)
	}
	m.mu.RUnlock()

	var rows []Row
	for _, kind := range kinds {
		r := m.ring(kind)
		r.mu.Lock()
		for i := 0; i < r.count; i++ {
			idx := (r.head - r.count + i + len(r.samples)) % len(r.samples)
			s := r.samples[idx]
			rows = append(rows, Row{Timestamp: s.Timestamp, Kind: s.Kind, Value: s.Value})
		}
		r.mu.Unlock()
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows
}
