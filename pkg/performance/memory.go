package performance

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// MemorySnapshot is system and Go heap memory at a point in time.
type MemorySnapshot struct {
	Timestamp   time.Time
	TotalMB     uint64
	AvailableMB uint64
	UsedMB      uint64
	GoAllocMB   uint64
	GoSysMB     uint64
	NumGC       uint32
}

// MemoryPressure grades how close the host is to running out of memory.
// Decoded 1080p frames are ~8MB each, so the engine holds a few dozen MB of
// frames at any time.
type MemoryPressure int

const (
	PressureNone     MemoryPressure = iota // >800MB available
	PressureLow                            // 400-800MB
	PressureMedium                         // 200-400MB
	PressureHigh                           // 100-200MB
	PressureCritical                       // <100MB
)

// String returns human-readable pressure level
func (p MemoryPressure) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ReadMemory takes a snapshot. System figures are zero when the platform
// does not expose them.
func ReadMemory() (MemorySnapshot, error) {
	var rt runtime.MemStats
	runtime.ReadMemStats(&rt)

	snap := MemorySnapshot{
		Timestamp: time.Now(),
		GoAllocMB: rt.Alloc / mb,
		GoSysMB:   rt.Sys / mb,
		NumGC:     rt.NumGC,
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return snap, err
	}
	snap.TotalMB = vm.Total / mb
	snap.AvailableMB = vm.Available / mb
	snap.UsedMB = vm.Used / mb
	return snap, nil
}

// Pressure classifies available memory.
func (s MemorySnapshot) Pressure() MemoryPressure {
	switch {
	case s.TotalMB == 0:
		return PressureNone
	case s.AvailableMB < 100:
		return PressureCritical
	case s.AvailableMB < 200:
		return PressureHigh
	case s.AvailableMB < 400:
		return PressureMedium
	case s.AvailableMB < 800:
		return PressureLow
	default:
		return PressureNone
	}
}

// LogMemory writes a snapshot to log, escalating to warn under pressure.
func LogMemory(log zerolog.Logger) {
	snap, err := ReadMemory()
	if err != nil {
		log.Debug().Err(err).Msg("system memory unavailable")
	}
	pressure := snap.Pressure()

	ev := log.Info()
	if pressure >= PressureHigh {
		ev = log.Warn()
	}
	ev.Uint64("total_mb", snap.TotalMB).
		Uint64("available_mb", snap.AvailableMB).
		Uint64("used_mb", snap.UsedMB).
		Uint64("go_alloc_mb", snap.GoAllocMB).
		Uint64("go_sys_mb", snap.GoSysMB).
		Uint32("gc", snap.NumGC).
		Str("pressure", pressure.String()).
		Msg("memory")
}

// LogReport writes a tick report to log.
func LogReport(log zerolog.Logger, r Report) {
	ev := log.Info()
	if !r.Healthy {
		ev = log.Warn()
	}
	d := zerolog.Dict()
	for _, name := range r.FaultyLayers() {
		d = d.Uint64(name, r.LayerFaults[name])
	}
	ev.Float64("decode_ms", r.AvgDecodeMs).
		Float64("composite_ms", r.AvgCompositeMs).
		Float64("total_ms", r.AvgTotalMs).
		Float64("budget_ms", r.BudgetMs).
		Uint64("ticks", r.Ticks).
		Uint64("overruns", r.Overruns).
		Uint64("panics", r.Panics).
		Dict("faults", d).
		Bool("healthy", r.Healthy).
		Msg("render stats")
}
