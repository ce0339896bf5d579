// Package persistence serializes identified graph indexes to a single
// self-describing binary file.
//
// # Layout
//
// All integers are little-endian.
//
//	header   "VFGI" | version u16 | flags u8 | compression u8
//	body     metric u8 | dim u32 | n u64
//	         graph_degree u32 | intermediate_graph_degree u32 | build_algo u8 |
//	         store_dataset u8 | seed i64 | entry u32
//	         n x (count u32, count x neighbor u32)
//	         [n*dim f32 vectors]                                  flags bit 0
//	         [pq_dim u32 | pq_bits u8 | codebooks f32 | codes u8] flags bit 1
//	         n x id i64
//	trailer  crc32 (IEEE) of the body
//
// With compression the body and trailer are cut into blocks framed as
// [raw u32][stored u32, 0 = not compressed][bytes], followed by a
// zero-length block. Offsets reported for compressed files count
// decompressed bytes after the header.
//
// Only portable indexes are written. Any decoding failure, truncation
// included, yields a CorruptFormatError naming the section and offset.
package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
)

const (
	// Extension is the file name suffix of saved indexes.
	Extension = ".vfg"

	magic = "VFGI"
	// Version is the current format version.
	Version uint16 = 1

	headerSize  = 8
	preludeSize = 1 + 4 + 8 + 4 + 4 + 1 + 1 + 8 + 4

	flagVectors uint8 = 1 << 0
	flagCodes   uint8 = 1 << 1
	knownFlags        = flagVectors | flagCodes

	// DefaultBlockSize is the uncompressed size of compression blocks.
	DefaultBlockSize = 1 << 20
	maxBlockSize     = 64 << 20
)

// Section names used in CorruptFormatError.
const (
	SectionHeader    = "header"
	SectionBlocks    = "blocks"
	SectionPrelude   = "prelude"
	SectionAdjacency = "adjacency"
	SectionVectors   = "vectors"
	SectionCodes     = "codes"
	SectionIDs       = "ids"
	SectionTrailer   = "trailer"
)

var (
	ErrBadMagic     = errors.New("unrecognized magic")
	ErrBadVersion   = errors.New("unsupported format version")
	ErrBadValue     = errors.New("invalid field value")
	ErrTrailingData = errors.New("trailing data")
	ErrInconsistent = errors.New("inconsistent index")
)

// Compression selects block compression of the body.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Valid reports whether c is a known compression.
func (c Compression) Valid() bool { return c <= CompressionZSTD }

// ParseCompression parses "none", "lz4" or "zstd"; "" means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, errs.Configuration("persistence.parse_compression", "compression", "unknown compression %q (want none, lz4 or zstd)", s)
	}
}

// Header is the fixed-size file prefix.
type Header struct {
	Version     uint16
	Flags       uint8
	Compression Compression
}

// HasVectors reports whether the body carries raw vectors.
func (h Header) HasVectors() bool { return h.Flags&flagVectors != 0 }

// HasCodes reports whether the body carries product-quantized codes.
func (h Header) HasCodes() bool { return h.Flags&flagCodes != 0 }

// Info describes a serialized index without decoding its arrays.
type Info struct {
	Header
	Metric distance.Metric
	Dim    int
	Len    int
	Params graph.Params
	Entry  uint32
	Size   int64
}
