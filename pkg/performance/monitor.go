package performance

import (
	"sort"
	"sync"
	"time"
)

// RollingAverage keeps the mean of the last N durations.
type RollingAverage struct {
	mu      sync.Mutex
	samples []time.Duration
	sum     time.Duration
	next    int
	count   int
}

// NewRollingAverage creates an average over window samples.
func NewRollingAverage(window int) *RollingAverage {
	if window <= 0 {
		window = 1
	}
	return &RollingAverage{samples: make([]time.Duration, window)}
}

// Add records a sample, evicting the oldest once the window is full.
func (r *RollingAverage) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.samples) {
		r.sum -= r.samples[r.next]
	} else {
		r.count++
	}
	r.samples[r.next] = d
	r.sum += d
	r.next = (r.next + 1) % len(r.samples)
}

// Average returns the mean of the recorded samples, 0 when empty.
func (r *RollingAverage) Average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	return r.sum / time.Duration(r.count)
}

// Count returns how many samples are in the window.
func (r *RollingAverage) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset drops all samples.
func (r *RollingAverage) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.samples)
	r.sum, r.next, r.count = 0, 0, 0
}

// Tick is the timing of one render tick.
type Tick struct {
	Decode    time.Duration
	Composite time.Duration
	Total     time.Duration
	Budget    time.Duration
	// Overrun is set when the tick ran so long the loop skipped its sleep.
	Overrun bool
}

// TickMonitor aggregates render loop timings and faults.
type TickMonitor struct {
	decode    *RollingAverage
	composite *RollingAverage
	total     *RollingAverage

	mu       sync.Mutex
	ticks    uint64
	overruns uint64
	panics   uint64
	faults   map[string]uint64
	budget   time.Duration
	started  time.Time
}

// Report is a point-in-time summary of a TickMonitor.
type Report struct {
	AvgDecodeMs    float64
	AvgCompositeMs float64
	AvgTotalMs     float64
	BudgetMs       float64
	Ticks          uint64
	Overruns       uint64
	OverrunRate    float64
	Panics         uint64
	LayerFaults    map[string]uint64
	Uptime         time.Duration
	Healthy        bool
}

// NewMonitor creates a monitor averaging over window ticks
// (90 = three seconds at 30fps).
func NewMonitor(window int) *TickMonitor {
	return &TickMonitor{
		decode:    NewRollingAverage(window),
		composite: NewRollingAverage(window),
		total:     NewRollingAverage(window),
		faults:    make(map[string]uint64),
		started:   time.Now(),
	}
}

// RecordTick records one completed tick.
func (m *TickMonitor) RecordTick(t Tick) {
	m.decode.Add(t.Decode)
	m.composite.Add(t.Composite)
	m.total.Add(t.Total)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	if t.Overrun {
		m.overruns++
	}
	m.budget = t.Budget
}

// RecordLayerFault counts a read or blend failure on a layer.
func (m *TickMonitor) RecordLayerFault(layer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[layer]++
}

// RecordPanic counts a tick that panicked and was recovered.
func (m *TickMonitor) RecordPanic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

// Report summarises the current window.
func (m *TickMonitor) Report() Report {
	r := Report{
		AvgDecodeMs:    ms(m.decode.Average()),
		AvgCompositeMs: ms(m.composite.Average()),
		AvgTotalMs:     ms(m.total.Average()),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r.BudgetMs = ms(m.budget)
	r.Ticks = m.ticks
	r.Overruns = m.overruns
	r.Panics = m.panics
	r.Uptime = time.Since(m.started)
	r.LayerFaults = make(map[string]uint64, len(m.faults))
	for k, v := range m.faults {
		r.LayerFaults[k] = v
	}
	if m.ticks > 0 {
		r.OverrunRate = float64(m.overruns) / float64(m.ticks) * 100
	}
	r.Healthy = r.OverrunRate < 1 && (r.BudgetMs == 0 || r.AvgTotalMs <= r.BudgetMs)
	return r
}

// FaultyLayers returns layer names with at least one fault, sorted.
func (r Report) FaultyLayers() []string {
	names := make([]string, 0, len(r.LayerFaults))
	for k := range r.LayerFaults {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Reset clears all counters and averages.
func (m *TickMonitor) Reset() {
	m.decode.Reset()
	m.composite.Reset()
	m.total.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks, m.overruns, m.panics = 0, 0, 0
	m.faults = make(map[string]uint64)
	m.started = time.Now()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
