// Package testutil provides fixtures for vecforge tests.
//
// It is intended for tests and benchmarks only.
//
// # Datasets
//
//	ds := testutil.Corners(t)          // the four 4-dimensional unit vectors
//	ids := testutil.OffsetIDs(n, 1000, 7)
//
// # Indexes
//
//	m := testutil.BuildMap(t, ds, testutil.SmallParams(7), ids)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.ExactTopK(ds, ids, distance.MetricL2, query, k)
package testutil
