package detections

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// cpuFeatures lists the vector extensions onnxruntime can dispatch to on this host.
func cpuFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasAVX512 {
			features = append(features, "avx512")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "neon")
		}
		if cpu.ARM64.HasASIMDDP {
			features = append(features, "dotprod")
		}
	}
	return features
}
