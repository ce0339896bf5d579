package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vecforge/errs"
)

const blockHeaderSize = 8

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(2*maxBlockSize))
	return dec
}

// compressBlock frames data as one block. Blocks that do not shrink below
// 90% of their size are stored uncompressed.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func uncompress(src []byte, raw int, c Compression) ([]byte, error) {
	dst := make([]byte, raw)
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		if n != raw {
			return nil, errors.New("decompressed size mismatch")
		}
		return dst, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, err
		}
		if len(out) != raw {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compression %v", c)
	}
}

// blockWriter cuts the stream into compressed blocks.
type blockWriter struct {
	w    io.Writer
	c    Compression
	size int
	buf  []byte
}

func newBlockWriter(w io.Writer, c Compression, size int) *blockWriter {
	if size <= 0 || size > maxBlockSize {
		size = DefaultBlockSize
	}
	return &blockWriter{w: w, c: c, size: size, buf: make([]byte, 0, size)}
}

func (bw *blockWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(bw.size-len(bw.buf), len(p))
		bw.buf = append(bw.buf, p[:n]...)
		p = p[n:]
		written += n
		if len(bw.buf) == bw.size {
			if err := bw.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (bw *blockWriter) flush() error {
	if len(bw.buf) == 0 {
		return nil
	}
	block, err := compressBlock(bw.buf, bw.c)
	if err != nil {
		return err
	}
	bw.buf = bw.buf[:0]
	_, err = bw.w.Write(block)
	return err
}

// Close flushes the last block and writes the terminator. It does not
// close the underlying writer.
func (bw *blockWriter) Close() error {
	if err := bw.flush(); err != nil {
		return err
	}
	var end [blockHeaderSize]byte
	_, err := bw.w.Write(end[:])
	return err
}

// decompressBlocks decodes framed blocks from data, which starts at file
// offset base. It stops at the terminator, or once limit bytes are
// available when limit > 0, and returns the payload and the number of
// bytes consumed.
func decompressBlocks(data []byte, base int64, c Compression, limit int) ([]byte, int, error) {
	var payload []byte
	off := 0
	for {
		if limit > 0 && len(payload) >= limit {
			return payload, off, nil
		}
		if len(data)-off < blockHeaderSize {
			return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(off), io.ErrUnexpectedEOF)
		}
		raw := binary.LittleEndian.Uint32(data[off:])
		stored := binary.LittleEndian.Uint32(data[off+4:])

		if raw == 0 {
			if stored != 0 {
				return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(off), fmt.Errorf("%w: empty block stores %d bytes", ErrBadValue, stored))
			}
			return payload, off + blockHeaderSize, nil
		}
		if raw > maxBlockSize {
			return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(off), fmt.Errorf("%w: block of %d bytes", ErrBadValue, raw))
		}

		start := off + blockHeaderSize
		if stored == 0 {
			if uint64(len(data)-start) < uint64(raw) {
				return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(len(data)), io.ErrUnexpectedEOF)
			}
			payload = append(payload, data[start:start+int(raw)]...)
			off = start + int(raw)
			continue
		}

		if uint64(len(data)-start) < uint64(stored) {
			return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(len(data)), io.ErrUnexpectedEOF)
		}
		block, err := uncompress(data[start:start+int(stored)], int(raw), c)
		if err != nil {
			return nil, off, errs.CorruptFormat(SectionBlocks, base+int64(start), err)
		}
		payload = append(payload, block...)
		off = start + int(stored)
	}
}
