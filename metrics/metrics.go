// Package metrics defines the operational metrics hooks of the index lifecycle.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives one call per completed lifecycle operation.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordBuild is called after each graph construction.
	// n is the number of indexed vectors.
	RecordBuild(n int, duration time.Duration, err error)

	// RecordTransfer is called after each accelerator to portable conversion.
	RecordTransfer(n int, duration time.Duration, err error)

	// RecordSave is called after each serialization; bytes is the encoded size.
	RecordSave(bytes int64, duration time.Duration, err error)

	// RecordLoad is called after each deserialization.
	RecordLoad(bytes int64, duration time.Duration, err error)

	// RecordSearch is called after each query.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordJob is called when a build job reaches a terminal state.
	RecordJob(status string, duration time.Duration)
}

// NoopCollector discards every observation.
type NoopCollector struct{}

func (NoopCollector) RecordBuild(int, time.Duration, error)    {}
func (NoopCollector) RecordTransfer(int, time.Duration, error) {}
func (NoopCollector) RecordSave(int64, time.Duration, error)   {}
func (NoopCollector) RecordLoad(int64, time.Duration, error)   {}
func (NoopCollector) RecordSearch(int, time.Duration, error)   {}
func (NoopCollector) RecordJob(string, time.Duration)          {}

// OrNoop returns c, or a NoopCollector when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return NoopCollector{}
	}
	return c
}

// BasicCollector keeps in-memory counters.
type BasicCollector struct {
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildVectors     atomic.Int64
	BuildTotalNanos  atomic.Int64
	TransferCount    atomic.Int64
	TransferErrors   atomic.Int64
	SaveCount        atomic.Int64
	SaveErrors       atomic.Int64
	SaveBytes        atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	JobsCompleted    atomic.Int64
	JobsFailed       atomic.Int64
}

// RecordBuild implements Collector.
func (b *BasicCollector) RecordBuild(n int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildVectors.Add(int64(n))
}

// RecordTransfer implements Collector.
func (b *BasicCollector) RecordTransfer(_ int, _ time.Duration, err error) {
	b.TransferCount.Add(1)
	if err != nil {
		b.TransferErrors.Add(1)
	}
}

// RecordSave implements Collector.
func (b *BasicCollector) RecordSave(bytes int64, _ time.Duration, err error) {
	b.SaveCount.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SaveBytes.Add(bytes)
}

// RecordLoad implements Collector.
func (b *BasicCollector) RecordLoad(_ int64, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordSearch implements Collector.
func (b *BasicCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordJob implements Collector.
func (b *BasicCollector) RecordJob(status string, _ time.Duration) {
	switch status {
	case "completed":
		b.JobsCompleted.Add(1)
	case "failed":
		b.JobsFailed.Add(1)
	}
}

// Stats returns a snapshot of current metrics.
func (b *BasicCollector) Stats() Stats {
	return Stats{
		BuildCount:     b.BuildCount.Load(),
		BuildErrors:    b.BuildErrors.Load(),
		BuildVectors:   b.BuildVectors.Load(),
		BuildAvgNanos:  avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		TransferCount:  b.TransferCount.Load(),
		TransferErrors: b.TransferErrors.Load(),
		SaveCount:      b.SaveCount.Load(),
		SaveErrors:     b.SaveErrors.Load(),
		SaveBytes:      b.SaveBytes.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		JobsCompleted:  b.JobsCompleted.Load(),
		JobsFailed:     b.JobsFailed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// Stats is a snapshot of BasicCollector state.
type Stats struct {
	BuildCount     int64
	BuildErrors    int64
	BuildVectors   int64
	BuildAvgNanos  int64
	TransferCount  int64
	TransferErrors int64
	SaveCount      int64
	SaveErrors     int64
	SaveBytes      int64
	LoadCount      int64
	LoadErrors     int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	JobsCompleted  int64
	JobsFailed     int64
}
