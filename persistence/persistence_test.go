package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/blobstore"
	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/testutil"
)

func buildMap(t *testing.T, ds *dataset.Dataset, params graph.Params) *idmap.Map {
	t.Helper()
	return testutil.BuildMap(t, ds, params, testutil.OffsetIDs(ds.Len(), 1000, 7))
}

func encodeBytes(t *testing.T, m *idmap.Map, c Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := Encode(&buf, m, WithCompression(c))
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

func assertSameIndex(t *testing.T, want, got *idmap.Map) {
	t.Helper()
	wi, gi := want.Index(), got.Index()
	require.Equal(t, wi.Len(), gi.Len())
	assert.Equal(t, wi.Dim(), gi.Dim())
	assert.Equal(t, wi.Metric(), gi.Metric())
	assert.Equal(t, wi.Params(), gi.Params())
	assert.Equal(t, wi.Entry(), gi.Entry())
	assert.Equal(t, graph.Portable, gi.Representation())
	assert.Equal(t, want.IDs(), got.IDs())
	assert.Equal(t, wi.Vectors(), gi.Vectors())
	assert.Equal(t, wi.Codes(), gi.Codes())
	for i := 0; i < wi.Len(); i++ {
		assert.Equal(t, wi.Neighbors(uint32(i), nil), gi.Neighbors(uint32(i), nil), "node %d", i)
	}
}

func TestRoundTrip(t *testing.T) {
	sizes := map[string]*dataset.Dataset{
		"empty":  dataset.Random(0, 8, 1),
		"single": dataset.Random(1, 8, 1),
		"1000":   dataset.Clustered(1000, 8, 10, 1),
	}
	for name, ds := range sizes {
		m := buildMap(t, ds, testutil.SmallParams(7))
		for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
			t.Run(name+"/"+c.String(), func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "index.vfg")
				require.NoError(t, Save(path, m, WithCompression(c)))

				got, err := Load(path)
				require.NoError(t, err)
				assertSameIndex(t, m, got)

				if ds.Len() > 0 {
					q := ds.Row(ds.Len() - 1)
					want, err := m.SearchOne(q, 5, graph.SearchOptions{})
					require.NoError(t, err)
					res, err := got.SearchOne(q, 5, graph.SearchOptions{})
					require.NoError(t, err)
					assert.Equal(t, want, res)
				}
			})
		}
	}
}

func TestRoundTripCodesOnly(t *testing.T) {
	ds := dataset.Clustered(300, 16, 4, 3)
	p := testutil.SmallParams(7)
	p.StoreDataset = false
	m := buildMap(t, ds, p)
	require.False(t, m.Index().HasVectors())
	require.NotNil(t, m.Index().Quantizer())

	got, err := Decode(bytes.NewReader(encodeBytes(t, m, CompressionZSTD)), -1)
	require.NoError(t, err)
	assertSameIndex(t, m, got)
	assert.Equal(t, m.Index().Quantizer().Codebooks(), got.Index().Quantizer().Codebooks())
	assert.Equal(t, m.Index().Quantizer().M(), got.Index().Quantizer().M())
}

func TestEndToEndSelfMatch(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	path := filepath.Join(t.TempDir(), "corners.vfg")
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	ds := testutil.Corners(t)
	for i := 0; i < ds.Len(); i++ {
		res, err := loaded.SearchOne(ds.Row(i), 1, graph.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, m.IDs()[i], res[0].ID)
		assert.Equal(t, float32(0), res[0].Distance)
	}
}

func TestTruncationIsCorrupt(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		data := encodeBytes(t, m, c)
		t.Run(c.String(), func(t *testing.T) {
			for cut := 0; cut < len(data); cut++ {
				_, err := decode(data[:cut])
				require.Error(t, err, "cut at %d", cut)
				require.ErrorIs(t, err, errs.ErrCorruptFormat, "cut at %d", cut)

				var cf *errs.CorruptFormatError
				require.True(t, errors.As(err, &cf), "cut at %d", cut)
				assert.NotEmpty(t, cf.Section)
			}
		})
	}
}

func TestTruncatedFileOnDisk(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	data := encodeBytes(t, m, CompressionNone)
	path := filepath.Join(t.TempDir(), "short.vfg")
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, errs.ErrCorruptFormat)
}

func TestRejectsOversizedCounts(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	good := encodeBytes(t, m, CompressionNone)

	tests := []struct {
		name string
		dim  uint32
		n    uint64
	}{
		{"nodes", 4, math.MaxUint32},
		{"nodes and dimension", math.MaxInt32, math.MaxUint32},
		{"dimension", math.MaxInt32, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(good[:headerSize+preludeSize])
			binary.LittleEndian.PutUint32(data[headerSize+1:], tt.dim)
			binary.LittleEndian.PutUint64(data[headerSize+5:], tt.n)

			_, err := decode(data)
			require.ErrorIs(t, err, errs.ErrCorruptFormat)
			var cf *errs.CorruptFormatError
			require.True(t, errors.As(err, &cf))
			assert.Equal(t, SectionAdjacency, cf.Section)
			assert.LessOrEqual(t, cf.Offset, int64(len(data)))
		})
	}
}

func TestChecksumMismatch(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	data := encodeBytes(t, m, CompressionNone)

	idx := m.Index()
	off := headerSize + preludeSize
	for i := 0; i < idx.Len(); i++ {
		off += 4 + 4*idx.Degree(uint32(i))
	}
	// First byte of the first vector.
	data[off] ^= 0x01

	_, err := decode(data)
	require.ErrorIs(t, err, errs.ErrCorruptFormat)
	var mismatch *ChecksumMismatchError
	require.True(t, errors.As(err, &mismatch))
	var cf *errs.CorruptFormatError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, SectionTrailer, cf.Section)
}

func TestRejectsMalformedHeader(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	good := encodeBytes(t, m, CompressionNone)

	tests := []struct {
		name   string
		mutate func(b []byte)
		cause  error
	}{
		{"magic", func(b []byte) { copy(b, "NOPE") }, ErrBadMagic},
		{"version", func(b []byte) { b[4] = 9 }, ErrBadVersion},
		{"flags", func(b []byte) { b[6] |= 0x80 }, ErrBadValue},
		{"compression", func(b []byte) { b[7] = 42 }, ErrBadValue},
		{"metric", func(b []byte) { b[headerSize] = 99 }, ErrBadValue},
		{"dimension", func(b []byte) { clear(b[headerSize+1 : headerSize+5]) }, ErrBadValue},
		{"trailing", nil, ErrTrailingData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(good)
			if tt.mutate != nil {
				tt.mutate(data)
			} else {
				data = append(data, 0)
			}
			_, err := decode(data)
			require.ErrorIs(t, err, errs.ErrCorruptFormat)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestRejectsOutOfRangeNeighbor(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	data := encodeBytes(t, m, CompressionNone)

	// First neighbor of node 0.
	off := headerSize + preludeSize + 4
	require.Positive(t, m.Index().Degree(0))
	data[off], data[off+1], data[off+2], data[off+3] = 0xff, 0xff, 0, 0

	_, err := decode(data)
	require.ErrorIs(t, err, errs.ErrCorruptFormat)
	var cf *errs.CorruptFormatError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, SectionAdjacency, cf.Section)
	assert.Equal(t, int64(off), cf.Offset)
}

func TestSaveRejectsAccelerator(t *testing.T) {
	res := device.NewResources(device.Device{ID: 0, Kind: device.Accelerator, Name: "acc", MemoryBytes: 1 << 30, Streams: 2})
	b := builder.New(res)
	idx, err := b.Build(context.Background(), testutil.Corners(t), distance.MetricL2, graph.DefaultParams())
	require.NoError(t, err)
	m, err := idmap.Wrap(idx)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "acc.vfg")
	err = Save(path, m)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveIsAtomic(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.vfg")

	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))
	require.NoError(t, Save(path, m))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = Load(path)
	require.NoError(t, err)
}

func TestSaveIntoMissingDirectory(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	err := Save(filepath.Join(t.TempDir(), "missing", "idx.vfg"), m)
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.vfg"))
	require.ErrorIs(t, err, errs.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, errs.CodeIOFailure, errs.CodeOf(err))
}

func TestInspect(t *testing.T) {
	ds := dataset.Clustered(200, 8, 4, 9)
	m := buildMap(t, ds, testutil.SmallParams(7))
	path := filepath.Join(t.TempDir(), "idx.vfg")
	require.NoError(t, Save(path, m, WithCompression(CompressionZSTD)))

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, CompressionZSTD, info.Compression)
	assert.True(t, info.HasVectors())
	assert.False(t, info.HasCodes())
	assert.Equal(t, 200, info.Len)
	assert.Equal(t, 8, info.Dim)
	assert.Equal(t, distance.MetricL2, info.Metric)
	assert.Equal(t, testutil.SmallParams(7), info.Params)
	assert.Equal(t, m.Index().Entry(), info.Entry)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, st.Size(), info.Size)
}

func TestDecodeShortStream(t *testing.T) {
	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	data := encodeBytes(t, m, CompressionNone)

	_, err := Decode(bytes.NewReader(data[:10]), int64(len(data)))
	assert.ErrorIs(t, err, errs.ErrCorruptFormat)

	got, err := Decode(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, m.IDs(), got.IDs())
}

func TestBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := buildMap(t, dataset.Clustered(100, 8, 3, 5), testutil.SmallParams(7))
	collector := &metrics.BasicCollector{}

	require.NoError(t, SaveBlob(ctx, store, "idx/a.vfg", m, WithCompression(CompressionLZ4), func(o *Options) { o.Metrics = collector }))
	got, err := LoadBlob(ctx, store, "idx/a.vfg", func(o *Options) { o.Metrics = collector })
	require.NoError(t, err)
	assertSameIndex(t, m, got)

	_, err = LoadBlob(ctx, store, "idx/missing.vfg")
	assert.ErrorIs(t, err, errs.ErrIO)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	stats := collector.Stats()
	assert.Equal(t, int64(1), stats.SaveCount)
	assert.Equal(t, int64(1), stats.LoadCount)
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(&bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	m := buildMap(t, testutil.Corners(t), graph.DefaultParams())
	_, err = Encode(&bytes.Buffer{}, m, WithCompression(Compression(7)))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, " zstd ": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestCompressedBlocksShrinkRepetitiveData(t *testing.T) {
	vectors := make([]float32, 2000*8)
	for i := range vectors {
		vectors[i] = float32(math.Floor(float64(i%16) / 4))
	}
	ds, err := dataset.New(8, vectors, nil)
	require.NoError(t, err)
	m := buildMap(t, ds, testutil.SmallParams(7))

	plain := encodeBytes(t, m, CompressionNone)
	packed := encodeBytes(t, m, CompressionZSTD)
	assert.Less(t, len(packed), len(plain))
}
