// Package quantization implements product quantization (PQ) for graph
// construction and for traversing indexes that do not retain raw vectors.
//
// A vector of dimension D is split into M contiguous sub-vectors of D/M
// components. Each sub-space has a codebook of 2^bits centroids trained with
// k-means, and a vector is stored as M one-byte centroid indexes.
//
//	pq, _ := quantization.NewProductQuantizer(128, 32, 8, distance.MetricL2)
//	_ = pq.Train(ctx, trainset, quantization.TrainOptions{Iters: 10, Seed: 1})
//	codes := pq.EncodeAll(vectors)
//	table := pq.DistanceTable(query)
//	d := table.Distance(codes[i*pq.M():(i+1)*pq.M()])
//
// Distance tables implement asymmetric distance computation (ADC): the query
// stays in full precision and only database vectors are quantized.
package quantization
