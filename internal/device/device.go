// Package device resolves the compute device for a run and describes the
// host it runs on.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/nfnet/internal/config"
	"github.com/klauspost/cpuid/v2"
)

// ErrUnavailable is returned when an explicitly requested device cannot be
// used on this host.
var ErrUnavailable = errors.New("device unavailable")

// Select resolves the requested device. Auto prefers WebGPU when available
// and falls back to the CPU.
func Select(requested config.Device, webgpuAvailable bool) (config.Device, error) {
	switch requested {
	case config.DeviceCPU:
		return config.DeviceCPU, nil
	case config.DeviceWebGPU:
		if !webgpuAvailable {
			return "", fmt.Errorf("%w: webgpu", ErrUnavailable)
		}
		return config.DeviceWebGPU, nil
	case config.DeviceAuto, "":
		if webgpuAvailable {
			return config.DeviceWebGPU, nil
		}
		return config.DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q", ErrUnavailable, requested)
	}
}

// Host summarizes the CPU the process runs on.
type Host struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string
}

// simdFeatures lists the extensions the CPU kernels can take advantage of.
var simdFeatures = []struct {
	name string
	id   cpuid.FeatureID
}{
	{"SSE4.2", cpuid.SSE42},
	{"AVX", cpuid.AVX},
	{"AVX2", cpuid.AVX2},
	{"FMA3", cpuid.FMA3},
	{"AVX512F", cpuid.AVX512F},
	{"ASIMD", cpuid.ASIMD},
}

// Describe reports the host CPU.
func Describe() Host {
	h := Host{
		Brand:         strings.TrimSpace(cpuid.CPU.BrandName),
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if h.Brand == "" {
		h.Brand = "unknown"
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			h.Features = append(h.Features, f.name)
		}
	}
	return h
}

func (h Host) String() string {
	features := "none"
	if len(h.Features) > 0 {
		features = strings.Join(h.Features, ",")
	}
	return fmt.Sprintf("%s (%d cores, %d threads, simd: %s)", h.Brand, h.PhysicalCores, h.LogicalCores, features)
}
