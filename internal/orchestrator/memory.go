package orchestrator

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dshills/catalogconv/internal/config"
)

// MemoryMonitor samples process memory and asks the runtime to give memory
// back once usage crosses the threshold. It never slows the pipeline down.
type MemoryMonitor struct {
	threshold uint64
	interval  time.Duration
	logger    *slog.Logger

	peak     atomic.Uint64
	triggers atomic.Int64
}

// NewMemoryMonitor creates a monitor; a zero threshold disables it
func NewMemoryMonitor(cfg config.MemoryConfig, logger *slog.Logger) *MemoryMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	var threshold uint64
	if cfg.ThresholdMB > 0 {
		threshold = uint64(cfg.ThresholdMB) << 20
	}
	return &MemoryMonitor{
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

// Start samples in the background until ctx is done or stop is called
func (m *MemoryMonitor) Start(ctx context.Context) (stop func()) {
	if m.threshold == 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Check takes one sample and reports whether the threshold was exceeded
func (m *MemoryMonitor) Check() bool {
	used := resident()
	for {
		peak := m.peak.Load()
		if used <= peak || m.peak.CompareAndSwap(peak, used) {
			break
		}
	}

	if m.threshold == 0 || used < m.threshold {
		return false
	}

	m.triggers.Add(1)
	runtime.GC()
	debug.FreeOSMemory()
	m.logger.Warn("memory above threshold, collected garbage",
		"used", humanize.IBytes(used),
		"after", humanize.IBytes(resident()),
		"threshold", humanize.IBytes(m.threshold))
	return true
}

// Peak returns the highest usage sampled
func (m *MemoryMonitor) Peak() uint64 {
	return m.peak.Load()
}

// Triggers returns how many samples crossed the threshold
func (m *MemoryMonitor) Triggers() int64 {
	return m.triggers.Load()
}

// resident approximates the memory the process holds from the OS
func resident() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapReleased
}
