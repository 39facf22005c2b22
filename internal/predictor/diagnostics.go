package predictor

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/boxlabel/internal/cpuspec"
	"github.com/tphakala/boxlabel/internal/logger"
)

// SystemInfo is the host snapshot attached to fallback diagnostics.
type SystemInfo struct {
	CPU          cpuspec.CPUSpec
	GOARCH       string
	MemoryTotal  uint64
	MemoryAvail  uint64
	MemoryUsedPc float64
}

// CollectSystemInfo reads CPU and memory state. Memory fields stay zero when
// the platform does not expose them.
func CollectSystemInfo() SystemInfo {
	info := SystemInfo{CPU: cpuspec.GetCPUSpec(), GOARCH: runtime.GOARCH}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvail = vm.Available
		info.MemoryUsedPc = vm.UsedPercent
	}
	return info
}

func (s SystemInfo) fields() []logger.Field {
	return []logger.Field{
		logger.String("cpu", s.CPU.BrandName),
		logger.Strings("simd", s.CPU.SIMD),
		logger.String("arch", s.GOARCH),
		logger.Uint64("memory_total", s.MemoryTotal),
		logger.Uint64("memory_available", s.MemoryAvail),
		logger.Float64("memory_used_percent", s.MemoryUsedPc),
	}
}
