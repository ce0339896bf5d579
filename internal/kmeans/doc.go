// Package kmeans implements seeded Lloyd clustering. It trains the coarse
// quantizer of IVF candidate generation and the sub-space codebooks of
// product quantization.
package kmeans
