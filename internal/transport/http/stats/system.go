package stats

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatus is a point-in-time view of host and process load.
type SystemStatus struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	Goroutines  int       `json:"goroutines"`
	Uptime      string    `json:"uptime"`
	SampledAt   time.Time `json:"sampled_at"`
}

// SystemSampler reads SystemStatus.
type SystemSampler interface {
	Sample(ctx context.Context) (*SystemStatus, error)
}

type hostSampler struct {
	started time.Time
}

// NewHostSampler samples the current host with gopsutil.
func NewHostSampler() SystemSampler {
	return &hostSampler{started: time.Now()}
}

func (h *hostSampler) Sample(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(h.started).Truncate(time.Second).String(),
		SampledAt:  time.Now().UTC(),
	}

	// Interval 0 compares against the previous call.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(percents) > 0 {
		status.CPUUsage = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	status.MemoryUsage = vm.UsedPercent
	status.MemoryUsed = vm.Used
	status.MemoryTotal = vm.Total

	return status, nil
}
