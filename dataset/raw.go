package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/hupe1980/vecforge/errs"
)

// RawSize returns the byte length of n raw vectors of dimension dim.
func RawSize(n, dim int) int64 { return int64(n) * int64(dim) * 4 }

// ReadRaw parses n little-endian float32 vectors of dimension dim, assigning
// ids 0..n-1. A short stream is an IO error.
func ReadRaw(r io.Reader, n, dim int) (*Dataset, error) {
	if n < 0 {
		return nil, errs.Configuration("dataset.read_raw", "n", "vector count must be non-negative, got %d", n)
	}
	if dim <= 0 {
		return nil, errs.Configuration("dataset.read_raw", "dim", "dimension must be positive, got %d", dim)
	}

	vectors := make([]float32, n*dim)
	br := bufio.NewReaderSize(r, 1<<20)
	var word [4]byte
	for i := range vectors {
		if _, err := io.ReadFull(br, word[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, errs.IO("dataset.read_raw", "", err)
		}
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(word[:]))
	}
	return New(dim, vectors, nil)
}

// WriteRaw writes the vectors of d as little-endian float32 values.
func WriteRaw(w io.Writer, d *Dataset) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	var word [4]byte
	for _, v := range d.vectors {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err := bw.Write(word[:]); err != nil {
			return errs.IO("dataset.write_raw", "", err)
		}
	}
	return errs.IO("dataset.write_raw", "", bw.Flush())
}
