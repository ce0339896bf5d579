package persistence

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
)

// Options configures encoding and file operations.
type Options struct {
	Compression Compression
	// BlockSize is the uncompressed size of compression blocks.
	BlockSize int
	Logger    *logging.Logger
	Metrics   metrics.Collector
}

func newOptions(optFns []func(o *Options)) Options {
	opts := Options{BlockSize: DefaultBlockSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)
	return opts
}

// WithCompression selects block compression.
func WithCompression(c Compression) func(o *Options) {
	return func(o *Options) { o.Compression = c }
}

// Encode writes m to w and returns the number of bytes written.
func Encode(w io.Writer, m *idmap.Map, optFns ...func(o *Options)) (int64, error) {
	opts := newOptions(optFns)
	return encode(w, m, opts)
}

// check rejects indexes that cannot be written with opts.
func check(op string, m *idmap.Map, opts Options) (*graph.Index, error) {
	if m == nil {
		return nil, errs.Configuration(op, "index", "map is nil")
	}
	if !opts.Compression.Valid() {
		return nil, errs.Configuration(op, "compression", "unknown compression %d", opts.Compression)
	}
	idx := m.Index()
	if idx.Representation() != graph.Portable {
		return nil, errs.InvalidState(op, "%s indexes must be converted to portable before saving", idx.Representation())
	}
	return idx, nil
}

func encode(w io.Writer, m *idmap.Map, opts Options) (int64, error) {
	idx, err := check("persistence.encode", m, opts)
	if err != nil {
		return 0, err
	}

	var flags uint8
	if idx.HasVectors() {
		flags |= flagVectors
	}
	if idx.Quantizer() != nil {
		flags |= flagCodes
	}

	cw := &countingWriter{w: w}
	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	hdr[6] = flags
	hdr[7] = uint8(opts.Compression)
	if _, err := cw.Write(hdr[:]); err != nil {
		return cw.n, err
	}

	var sink io.Writer = cw
	var blocks *blockWriter
	if opts.Compression != CompressionNone {
		blocks = newBlockWriter(cw, opts.Compression, opts.BlockSize)
		sink = blocks
	}
	crc := newChecksumWriter(sink)
	e := &encoder{w: bufio.NewWriterSize(crc, 64*1024)}

	writeBody(e, m, idx)
	if e.err == nil {
		e.err = e.w.Flush()
	}
	if e.err != nil {
		return cw.n, e.err
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum())
	if _, err := sink.Write(trailer[:]); err != nil {
		return cw.n, err
	}
	if blocks != nil {
		if err := blocks.Close(); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

func writeBody(e *encoder, m *idmap.Map, idx *graph.Index) {
	n := idx.Len()
	p := idx.Params()

	e.u8(uint8(idx.Metric()))
	e.u32(uint32(idx.Dim()))
	e.u64(uint64(n))
	e.u32(uint32(p.GraphDegree))
	e.u32(uint32(p.IntermediateGraphDegree))
	e.u8(uint8(p.BuildAlgo))
	e.bool(p.StoreDataset)
	e.u64(uint64(p.Seed))
	e.u32(idx.Entry())

	var buf []uint32
	for i := 0; i < n; i++ {
		buf = idx.Neighbors(uint32(i), buf[:0])
		e.u32(uint32(len(buf)))
		e.u32s(buf)
	}

	if idx.HasVectors() {
		e.f32s(idx.Vectors())
	}
	if pq := idx.Quantizer(); pq != nil {
		e.u32(uint32(pq.M()))
		e.u8(uint8(pq.Bits()))
		e.f32s(pq.Codebooks())
		e.bytes(idx.Codes())
	}

	for _, id := range m.IDs() {
		e.u64(uint64(id))
	}
}

// encoder writes little-endian values and keeps the first error.
type encoder struct {
	w       *bufio.Writer
	scratch [8]byte
	err     error
}

func (e *encoder) bytes(p []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(p)
	}
}

func (e *encoder) u8(v uint8) {
	if e.err == nil {
		e.err = e.w.WriteByte(v)
	}
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.scratch[:4], v)
	e.bytes(e.scratch[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.scratch[:8], v)
	e.bytes(e.scratch[:8])
}

func (e *encoder) u32s(vs []uint32) {
	for _, v := range vs {
		e.u32(v)
	}
}

func (e *encoder) f32s(vs []float32) {
	for _, v := range vs {
		e.u32(math.Float32bits(v))
	}
}
