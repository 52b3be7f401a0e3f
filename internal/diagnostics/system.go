package diagnostics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// GPUInfo names one graphics card.
type GPUInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Vendor string `json:"vendor,omitempty"`
}

// SystemStats is a point-in-time view of host resources.
type SystemStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	CPUCores      int       `json:"cpu_cores"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedGB  float64   `json:"memory_used_gb"`
	MemoryTotalGB float64   `json:"memory_total_gb"`
	LoadAvg1      float64   `json:"load_avg_1"`
	LoadAvg5      float64   `json:"load_avg_5"`
	LoadAvg15     float64   `json:"load_avg_15"`
	GPUs          []GPUInfo `json:"gpus,omitempty"`
}

// Collector produces SystemStats.
type Collector interface {
	Collect(ctx context.Context) (SystemStats, error)
}

// SystemCollector reads host statistics through gopsutil and ghw.
// Hardware that does not change (core count, GPUs) is read once.
type SystemCollector struct {
	sample time.Duration

	once  sync.Once
	cores int
	gpus  []GPUInfo
}

// NewSystemCollector creates a collector that samples CPU usage over the given window.
func NewSystemCollector(sample time.Duration) *SystemCollector {
	if sample <= 0 {
		sample = 100 * time.Millisecond
	}
	return &SystemCollector{sample: sample}
}

// Collect samples CPU, memory, load and GPU information.
// Memory is required; the other readings are best effort.
func (c *SystemCollector) Collect(ctx context.Context) (SystemStats, error) {
	c.once.Do(c.readHardware)

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemStats{}, fmt.Errorf("reading memory stats: %w", err)
	}

	stats := SystemStats{
		CPUCores:      c.cores,
		MemoryPercent: round2(vm.UsedPercent),
		MemoryUsedGB:  round2(float64(vm.Used) / bytesPerGB),
		MemoryTotalGB: round2(float64(vm.Total) / bytesPerGB),
		GPUs:          append([]GPUInfo(nil), c.gpus...),
	}

	if pct, err := cpu.PercentWithContext(ctx, c.sample, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = round2(pct[0])
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.LoadAvg1 = avg.Load1
		stats.LoadAvg5 = avg.Load5
		stats.LoadAvg15 = avg.Load15
	}
	return stats, nil
}

func (c *SystemCollector) readHardware() {
	if n, err := cpu.Counts(true); err == nil {
		c.cores = n
	}
	c.gpus = queryGPUs()
}

func queryGPUs() []GPUInfo {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]GPUInfo, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		gpu := GPUInfo{Index: card.Index}
		if card.DeviceInfo != nil {
			if card.DeviceInfo.Vendor != nil {
				gpu.Vendor = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
			if card.DeviceInfo.Product != nil {
				gpu.Name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			}
		}
		if gpu.Name == "" {
			gpu.Name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StaticCollector returns fixed stats. Useful where real host readings are unwanted.
type StaticCollector struct {
	Stats SystemStats
	Err   error
}

// Collect returns the fixed stats.
func (s StaticCollector) Collect(context.Context) (SystemStats, error) {
	return s.Stats, s.Err
}
