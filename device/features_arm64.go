//go:build arm64

package device

import "golang.org/x/sys/cpu"

func cpuFeatures() []string {
	var f []string
	if cpu.ARM64.HasASIMD {
		f = append(f, "neon")
	}
	if cpu.ARM64.HasSVE {
		f = append(f, "sve")
	}
	if cpu.ARM64.HasSVE2 {
		f = append(f, "sve2")
	}
	return f
}
