// Package distance holds the metrics an index can be built with.
//
// L2 indexes rank by squared Euclidean distance; inner-product indexes rank
// by the negated dot product, so that smaller is closer for both. Kernels
// come from github.com/viterin/vek, which uses AVX2 when the CPU has it.
//
//	fn, err := distance.Provider(distance.MetricL2)
//	d := fn(a, b)
package distance
