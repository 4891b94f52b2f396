package accel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
)

//go:generate mockgen -package mocks -destination mocks/detector.go . Detector

// Detector reports which tiers the host can run.
type Detector interface {
	Detect() Capabilities
}

// CPUDetector queries the CPU feature flags once per process.
type CPUDetector struct{}

var (
	hostOnce sync.Once
	hostCaps Capabilities
)

func (CPUDetector) Detect() Capabilities {
	hostOnce.Do(func() {
		hostCaps = capabilitiesOf(cpuid.CPU)
	})
	return hostCaps
}

func capabilitiesOf(info cpuid.CPUInfo) Capabilities {
	var tiers []Tier
	// The multi-buffer kernels use the F, DQ, BW and VL subsets.
	if info.Supports(cpuid.AVX512F, cpuid.AVX512DQ, cpuid.AVX512BW, cpuid.AVX512VL) {
		tiers = append(tiers, AVX512)
	}
	if info.Supports(cpuid.SHA, cpuid.SSE4) || info.Supports(cpuid.SHA2) {
		tiers = append(tiers, SHA)
	}
	if info.Supports(cpuid.AVX2) {
		tiers = append(tiers, AVX2)
	}
	if info.Supports(cpuid.AVX) {
		tiers = append(tiers, AVX)
	}
	if info.Supports(cpuid.SSE4) {
		tiers = append(tiers, SSE)
	}
	return NewCapabilities(tiers...)
}

// Select returns the preferred tier if the host supports it, otherwise the
// next supported tier in fallback order. None is always available.
func Select(preferred Tier, caps Capabilities) Tier {
	for t := preferred.clamp(); t < None; t++ {
		if caps.Has(t) {
			return t
		}
	}
	return None
}

// HardwareThreads is the number of logical CPUs, never less than one.
func HardwareThreads() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return n
}
