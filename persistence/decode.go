package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/internal/quantization"
)

// Decode reads an encoded index of size bytes from r. A negative size reads
// until EOF.
func Decode(r io.Reader, size int64) (*idmap.Map, error) {
	var data []byte
	if size < 0 {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.IO("persistence.decode", "", err)
		}
		data = b
	} else {
		data = make([]byte, size)
		n, err := io.ReadFull(r, data)
		switch {
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			return nil, errs.CorruptFormat(sectionAt(int64(n)), int64(n), io.ErrUnexpectedEOF)
		case err != nil:
			return nil, errs.IO("persistence.decode", "", err)
		}
	}
	return decode(data)
}

func sectionAt(off int64) string {
	if off < headerSize {
		return SectionHeader
	}
	return SectionPrelude
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, errs.CorruptFormat(SectionHeader, int64(len(data)), io.ErrUnexpectedEOF)
	}
	if string(data[:4]) != magic {
		return Header{}, errs.CorruptFormat(SectionHeader, 0, fmt.Errorf("%w %q", ErrBadMagic, data[:4]))
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(data[4:]),
		Flags:       data[6],
		Compression: Compression(data[7]),
	}
	if h.Version != Version {
		return h, errs.CorruptFormat(SectionHeader, 4, fmt.Errorf("%w %d", ErrBadVersion, h.Version))
	}
	if h.Flags&^knownFlags != 0 {
		return h, errs.CorruptFormat(SectionHeader, 6, fmt.Errorf("%w: flags 0x%02x", ErrBadValue, h.Flags))
	}
	if !h.Compression.Valid() {
		return h, errs.CorruptFormat(SectionHeader, 7, fmt.Errorf("%w: compression %d", ErrBadValue, h.Compression))
	}
	return h, nil
}

// payload returns the body and trailer bytes following the header.
func payload(data []byte, h Header, limit int) ([]byte, error) {
	if h.Compression == CompressionNone {
		return data[headerSize:], nil
	}
	body, consumed, err := decompressBlocks(data[headerSize:], headerSize, h.Compression, limit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 && headerSize+consumed != len(data) {
		return nil, errs.CorruptFormat(SectionBlocks, int64(headerSize+consumed), ErrTrailingData)
	}
	return body, nil
}

func decode(data []byte) (*idmap.Map, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	body, err := payload(data, h, 0)
	if err != nil {
		return nil, err
	}

	c := &cursor{data: body, base: headerSize}
	info, err := c.prelude(h)
	if err != nil {
		return nil, err
	}
	n, dim := info.Len, info.Dim

	c.section = SectionAdjacency
	// Each node needs at least a count and an id.
	if err := c.need(n, 12); err != nil {
		return nil, err
	}

	parts := graph.Parts{
		Representation: graph.Portable,
		Dim:            dim,
		Metric:         info.Metric,
		Params:         info.Params,
		Entry:          info.Entry,
		Offsets:        make([]uint64, n+1),
	}

	maxDegree := uint32(max(info.Params.GraphDegree, info.Params.IntermediateGraphDegree))
	neighbors := make([]uint32, 0, n*min(int(maxDegree), 64))
	for i := 0; i < n; i++ {
		count, err := c.u32()
		if err != nil {
			return nil, err
		}
		if count > maxDegree || int(count) >= max(n, 1) {
			return nil, c.failBack(4, fmt.Errorf("%w: node %d has %d neighbors", ErrBadValue, i, count))
		}
		for j := uint32(0); j < count; j++ {
			nb, err := c.u32()
			if err != nil {
				return nil, err
			}
			if int(nb) >= n || int(nb) == i {
				return nil, c.failBack(4, fmt.Errorf("%w: node %d links to %d", ErrBadValue, i, nb))
			}
			neighbors = append(neighbors, nb)
		}
		parts.Offsets[i+1] = uint64(len(neighbors))
	}
	parts.Neighbors = neighbors

	if h.HasVectors() {
		c.section = SectionVectors
		if parts.Vectors, err = c.f32s(n * dim); err != nil {
			return nil, err
		}
	}

	if h.HasCodes() {
		c.section = SectionCodes
		if parts.Quantizer, parts.Codes, err = c.codes(n, dim, info.Metric); err != nil {
			return nil, err
		}
	}

	c.section = SectionIDs
	if err := c.need(n, 8); err != nil {
		return nil, err
	}
	ids := make([]int64, n)
	for i := range ids {
		v, err := c.u64()
		if err != nil {
			return nil, err
		}
		ids[i] = int64(v)
	}

	c.section = SectionTrailer
	end := c.off
	want, err := c.u32()
	if err != nil {
		return nil, err
	}
	if c.off != len(body) {
		return nil, c.fail(ErrTrailingData)
	}
	if got := checksum(body[:end]); got != want {
		return nil, errs.CorruptFormat(SectionTrailer, c.base+int64(end), &ChecksumMismatchError{Expected: want, Actual: got})
	}

	idx, err := graph.New(parts)
	if err != nil {
		return nil, errs.CorruptFormat(SectionPrelude, headerSize, fmt.Errorf("%w: %s", ErrInconsistent, err.Error()))
	}
	return idmap.FromParts(idx, ids)
}

// cursor reads little-endian fields and reports failures at file offsets.
type cursor struct {
	data    []byte
	off     int
	base    int64
	section string
}

func (c *cursor) fail(cause error) error {
	return errs.CorruptFormat(c.section, c.base+int64(c.off), cause)
}

func (c *cursor) failBack(back int, cause error) error {
	return errs.CorruptFormat(c.section, c.base+int64(c.off-back), cause)
}

// need checks that count items of size bytes can still be read.
func (c *cursor) need(count, size int) error {
	if count < 0 || uint64(count)*uint64(size) > uint64(len(c.data)-c.off) {
		return errs.CorruptFormat(c.section, c.base+int64(len(c.data)), io.ErrUnexpectedEOF)
	}
	return nil
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.data)-c.off < n {
		return nil, errs.CorruptFormat(c.section, c.base+int64(len(c.data)), io.ErrUnexpectedEOF)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) f32s(count int) ([]float32, error) {
	if err := c.need(count, 4); err != nil {
		return nil, err
	}
	b, _ := c.take(count * 4)
	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// prelude decodes the fixed fields that precede the adjacency.
func (c *cursor) prelude(h Header) (Info, error) {
	c.section = SectionPrelude
	info := Info{Header: h}
	if len(c.data)-c.off < preludeSize {
		return info, c.need(1, preludeSize)
	}

	metric, _ := c.u8()
	info.Metric = distance.Metric(metric)
	if !info.Metric.Valid() {
		return info, c.failBack(1, fmt.Errorf("%w: metric %d", ErrBadValue, metric))
	}

	dim, _ := c.u32()
	if dim == 0 || dim > math.MaxInt32 {
		return info, c.failBack(4, fmt.Errorf("%w: dimension %d", ErrBadValue, dim))
	}
	info.Dim = int(dim)

	n, _ := c.u64()
	if n > math.MaxUint32 {
		return info, c.failBack(8, fmt.Errorf("%w: %d nodes", ErrBadValue, n))
	}
	info.Len = int(n)

	gd, _ := c.u32()
	igd, _ := c.u32()
	algo, _ := c.u8()
	store, _ := c.u8()
	seed, _ := c.u64()
	entry, _ := c.u32()

	info.Params = graph.Params{
		GraphDegree:             int(gd),
		IntermediateGraphDegree: int(igd),
		BuildAlgo:               graph.BuildAlgo(algo),
		StoreDataset:            store == 1,
		Seed:                    int64(seed),
	}
	if store > 1 {
		return info, errs.CorruptFormat(SectionPrelude, c.base+int64(c.off-13), fmt.Errorf("%w: store_dataset %d", ErrBadValue, store))
	}
	if err := info.Params.Validate(); err != nil {
		return info, errs.CorruptFormat(SectionPrelude, c.base+int64(c.off-22), fmt.Errorf("%w: %s", ErrBadValue, err.Error()))
	}
	if (n > 0 && uint64(entry) >= n) || (n == 0 && entry != 0) {
		return info, c.failBack(4, fmt.Errorf("%w: entry %d for %d nodes", ErrBadValue, entry, n))
	}
	info.Entry = entry
	if n > 0 && !h.HasVectors() && !h.HasCodes() {
		return info, errs.CorruptFormat(SectionHeader, 6, fmt.Errorf("%w: index carries neither vectors nor codes", ErrBadValue))
	}
	return info, nil
}

func (c *cursor) codes(n, dim int, metric distance.Metric) (*quantization.ProductQuantizer, []byte, error) {
	m32, err := c.u32()
	if err != nil {
		return nil, nil, err
	}
	m := int(m32)
	if m == 0 || m > dim || dim%m != 0 {
		return nil, nil, c.failBack(4, fmt.Errorf("%w: %d sub-quantizers for dimension %d", ErrBadValue, m, dim))
	}
	bits, err := c.u8()
	if err != nil {
		return nil, nil, err
	}
	if bits < 1 || bits > 8 {
		return nil, nil, c.failBack(1, fmt.Errorf("%w: %d bits per code", ErrBadValue, bits))
	}

	books, err := c.f32s((1 << bits) * dim)
	if err != nil {
		return nil, nil, err
	}
	pq, err := quantization.FromCodebooks(dim, m, int(bits), metric, books)
	if err != nil {
		return nil, nil, c.fail(fmt.Errorf("%w: %s", ErrBadValue, err.Error()))
	}

	if err := c.need(n, m); err != nil {
		return nil, nil, err
	}
	start := c.off
	raw, _ := c.take(n * m)
	for i, code := range raw {
		if int(code) >= 1<<bits {
			return nil, nil, errs.CorruptFormat(c.section, c.base+int64(start+i), fmt.Errorf("%w: code %d exceeds %d bits", ErrBadValue, code, bits))
		}
	}
	return pq, append([]byte(nil), raw...), nil
}

// inspect decodes the header and prelude of data.
func inspect(data []byte) (Info, error) {
	h, err := parseHeader(data)
	if err != nil {
		return Info{}, err
	}
	body, err := payload(data, h, preludeSize)
	if err != nil {
		return Info{}, err
	}
	c := &cursor{data: body, base: headerSize}
	info, err := c.prelude(h)
	info.Size = int64(len(data))
	return info, err
}
