//go:build amd64

package device

import "golang.org/x/sys/cpu"

func cpuFeatures() []string {
	var f []string
	if cpu.X86.HasAVX2 {
		f = append(f, "avx2")
	}
	if cpu.X86.HasFMA {
		f = append(f, "fma")
	}
	if cpu.X86.HasAVX512F {
		f = append(f, "avx512f")
	}
	if cpu.X86.HasAVX512BW {
		f = append(f, "avx512bw")
	}
	return f
}
