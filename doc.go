// Package vecforge builds, converts, persists and queries proximity-graph
// indexes for approximate nearest neighbor search over float32 vectors.
//
// The lifecycle runs in five steps. A builder constructs the graph on the
// host or on an accelerator device. An identifier map attaches 64-bit
// external ids. A transfer unit converts accelerator-resident graphs to the
// portable layout. The persistence package writes portable indexes
// atomically and loads them back with full validation. The query package
// answers top-k searches in external ids.
//
// # Quick Start
//
//	ds := dataset.Random(10_000, 128, 42)
//
//	p, _ := vecforge.New(vecforge.WithDevice(device.Device{
//	    ID: 0, Kind: device.Accelerator, Name: "gpu0", MemoryBytes: 8 << 30, Streams: 4,
//	}))
//	m, timings, _ := p.Build(ctx, ds)
//
//	_ = persistence.Save("sift.vfg", m, persistence.WithCompression(persistence.CompressionLZ4))
//
//	loaded, _ := persistence.Load("sift.vfg")
//	results, _ := query.New().Search(ctx, loaded, ds.Row(0), 10)
//
// # Build Service
//
// Package service runs the same pipeline as background jobs over vector
// files in object storage, and package server exposes it over HTTP.
package vecforge
