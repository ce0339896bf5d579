// Package transfer converts accelerator-resident graph indexes into the
// portable host representation.
//
// Conversion preserves node count, every neighbor list in order, the entry
// node, parameters, raw vectors bit for bit and product-quantized codes.
// Rows are copied in parallel across the leased streams; ToPortable returns
// only after every copy has completed.
package transfer

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
)

// Options configures a Unit.
type Options struct {
	Logger  *logging.Logger
	Metrics metrics.Collector
}

// Unit converts indexes resident on one accelerator.
type Unit struct {
	res  *device.Resources
	opts Options
}

// New creates a transfer unit for the device behind res.
func New(res *device.Resources, optFns ...func(o *Options)) *Unit {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)
	return &Unit{res: res, opts: opts}
}

// ToPortable copies src into a new Portable index. src is not modified.
func (u *Unit) ToPortable(ctx context.Context, src *graph.Index) (dst *graph.Index, err error) {
	const op = "transfer.to_portable"

	if src == nil {
		return nil, errs.Configuration(op, "index", "index is nil")
	}
	if u.res == nil {
		return nil, errs.Configuration(op, "device", "transfer unit has no device")
	}

	start := time.Now()
	n := src.Len()
	log := u.opts.Logger.WithDevice(src.Device().ID, src.Device().Kind.String())
	defer func() {
		elapsed := time.Since(start)
		log.LogTransfer(ctx, n, elapsed, err)
		u.opts.Metrics.RecordTransfer(n, elapsed, err)
	}()

	if src.Representation() == graph.Portable {
		return nil, errs.InvalidState(op, "index is already portable")
	}
	if dev := u.res.Device(); src.Device().ID != dev.ID || src.Device().Kind != dev.Kind {
		return nil, errs.With(
			errs.Configuration(op, "device", "index resides on %s, unit serves %s", src.Device(), dev),
			errs.Field("device_id", src.Device().ID),
		)
	}
	if pq := src.Quantizer(); !src.HasVectors() && pq != nil && pq.Bits() < 8 {
		return nil, errs.UnsupportedConversion(op, "%d-bit product-quantized codes have no portable encoding without raw vectors", pq.Bits())
	}

	lease, err := u.res.Acquire(ctx, "transfer", EstimateBytes(src))
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	offsets := make([]uint64, n+1)
	for i := 0; i < n; i++ {
		offsets[i+1] = offsets[i] + uint64(src.Degree(uint32(i)))
	}
	neighbors := make([]uint32, offsets[n])

	streams := max(lease.Streams(), 1)
	chunk := max((n+streams-1)/streams, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(streams)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each row appends in place into its own CSR span.
			for i := lo; i < hi; i++ {
				src.Neighbors(uint32(i), neighbors[offsets[i]:offsets[i]])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := graph.Parts{
		Representation: graph.Portable,
		Dim:            src.Dim(),
		Metric:         src.Metric(),
		Params:         src.Params(),
		Entry:          src.Entry(),
		Offsets:        offsets,
		Neighbors:      neighbors,
		Vectors:        slices.Clone(src.Vectors()),
	}
	if pq := src.Quantizer(); pq != nil {
		parts.Quantizer = pq.Clone()
		parts.Codes = slices.Clone(src.Codes())
	}
	return graph.New(parts)
}

// ToPortableMap converts the index of m and carries its identifiers across.
func (u *Unit) ToPortableMap(ctx context.Context, m *idmap.Map) (*idmap.Map, error) {
	if m == nil {
		return nil, errs.Configuration("transfer.to_portable", "index", "map is nil")
	}
	dst, err := u.ToPortable(ctx, m.Index())
	if err != nil {
		return nil, err
	}
	return idmap.FromParts(dst, slices.Clone(m.IDs()))
}

// EstimateBytes returns the host memory a portable copy of src occupies.
func EstimateBytes(src *graph.Index) int64 {
	n := int64(src.Len())
	total := (n+1)*8 + int64(src.Edges())*4
	total += int64(len(src.Vectors())) * 4
	if pq := src.Quantizer(); pq != nil {
		total += int64(len(pq.Codebooks()))*4 + int64(len(src.Codes()))
	}
	return total
}
