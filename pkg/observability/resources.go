package observability

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// ResourceMonitor samples the resource footprint of the running process.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

// ResourceUsage is one sample taken by a ResourceMonitor.
type ResourceUsage struct {
	CPUPercent     float64
	MemoryRSS      uint64
	GoroutineCount int
	ThreadCount    int32
	Elapsed        time.Duration
}

// NewResourceMonitor starts measuring from now. A process that cannot be
// inspected yields a monitor that only reports runtime figures.
func NewResourceMonitor() *ResourceMonitor {
	rm := &ResourceMonitor{startTime: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return rm
	}
	rm.process = proc
	if t, err := proc.Times(); err == nil {
		rm.startCPUTime = t.Total()
	}
	return rm
}

// Usage returns the usage since the monitor was created.
func (rm *ResourceMonitor) Usage() ResourceUsage {
	usage := ResourceUsage{
		GoroutineCount: runtime.NumGoroutine(),
		Elapsed:        time.Since(rm.startTime),
	}
	if rm.process == nil {
		return usage
	}

	if t, err := rm.process.Times(); err == nil && usage.Elapsed > 0 {
		usage.CPUPercent = (t.Total() - rm.startCPUTime) / usage.Elapsed.Seconds() * 100
	}
	if m, err := rm.process.MemoryInfo(); err == nil {
		usage.MemoryRSS = m.RSS
	}
	usage.ThreadCount, _ = rm.process.NumThreads()
	return usage
}

// Log writes the current usage as one structured line.
func (rm *ResourceMonitor) Log(logger *zap.Logger) {
	u := rm.Usage()
	logger.Info("resource usage",
		zap.Float64("cpu_percent", u.CPUPercent),
		zap.Uint64("rss_bytes", u.MemoryRSS),
		zap.Int("goroutines", u.GoroutineCount),
		zap.Int32("threads", u.ThreadCount),
		zap.Duration("elapsed", u.Elapsed))
}
