package persistence

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// crcTable is the IEEE polynomial table. CRC32 detects accidental
// corruption only; it is not a tamper check.
var crcTable = crc32.MakeTable(crc32.IEEE)

// checksum returns the CRC32 of data.
func checksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// checksumWriter forwards writes and keeps a running CRC32.
type checksumWriter struct {
	w    io.Writer
	hash hash.Hash32
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{w: w, hash: crc32.New(crcTable)}
}

func (cw *checksumWriter) Write(p []byte) (int, error) {
	_, _ = cw.hash.Write(p)
	return cw.w.Write(p)
}

func (cw *checksumWriter) Sum() uint32 { return cw.hash.Sum32() }

// ChecksumMismatchError reports a trailer that does not match the body.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// countingWriter counts bytes passed through.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
