// Package cpuspec inspects the host CPU to size inference threads and to
// decide whether the accelerated inference path is worth trying.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec describes the host processor.
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PhysicalCores    int
	PerformanceCores int // 0 when the part is not a known hybrid design
	SIMD             []string
}

// hybridPCores maps known hybrid parts to their performance-core count.
var hybridPCores = map[string]int{
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	"ultra 9 285": 8, "ultra 7 265": 8, "ultra 7 255": 8, "ultra 5 235": 6, "ultra 5 225": 4,
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

var (
	intelCore  = regexp.MustCompile(`core.*i[3579]-(1[234]\d)00`)
	intelUltra = regexp.MustCompile(`core.*(ultra\s+[579])\s+(?:processor\s+)?(\d{3})`)
	appleChip  = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)
)

// GetCPUSpec reads the host CPU through cpuid.
func GetCPUSpec() CPUSpec {
	spec := CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
	}
	spec.PerformanceCores = PerformanceCores(spec.BrandName)
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			spec.SIMD = append(spec.SIMD, f.name)
		}
	}
	return spec
}

// PerformanceCores returns the P-core count of a known hybrid part, else 0.
func PerformanceCores(brand string) int {
	brand = strings.ToLower(brand)
	if !strings.Contains(brand, "apple") {
		if m := intelUltra.FindStringSubmatch(brand); m != nil {
			return hybridPCores[strings.Join(strings.Fields(m[1]), " ")+" "+m[2]]
		}
		if m := intelCore.FindStringSubmatch(brand); m != nil {
			return hybridPCores[m[1]+"00"]
		}
		return 0
	}
	if m := appleChip.FindStringSubmatch(brand); m != nil {
		return hybridPCores[strings.Join(strings.Fields(m[1]), " ")]
	}
	return 0
}

// OptimalThreads returns the inference thread count for a configured value;
// zero means automatic. The result never exceeds the visible CPU count.
func (c CPUSpec) OptimalThreads(configured int) int {
	available := runtime.NumCPU()
	switch {
	case configured > 0:
		return min(configured, available)
	case c.PerformanceCores > 0:
		return min(c.PerformanceCores, available)
	case c.PhysicalCores > 0:
		return min(c.PhysicalCores, available)
	default:
		return available
	}
}

// AcceleratorAvailable reports whether the CPU has the vector extensions the
// XNNPACK delegate is built for.
func (c CPUSpec) AcceleratorAvailable() bool {
	for _, s := range c.SIMD {
		if s == "avx2" || s == "neon" {
			return true
		}
	}
	return false
}
