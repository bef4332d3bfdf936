// Package source provides read access to the text being parsed and the
// conversions between byte offsets and row/column points.
//
// Points are zero-based. Rows are separated by '\n' only; a '\r' preceding a
// '\n' belongs to the end of the row. Columns count UTF-8 bytes. Hosts that
// speak UTF-16 (LSP clients, for instance) convert at the boundary with
// LineIndex.UTF16Column and LineIndex.OffsetForUTF16.
package source

import (
	"fmt"
	"io"
)

// Input is the host's text. The engine only ever asks for the total length
// and for byte ranges inside it, so ropes, buffers and memory mapped files can
// all serve as input.
type Input interface {
	Len() uint32
	// ReadRange returns the bytes in [start, end). The caller never asks for
	// bytes outside [0, Len()). The returned slice must not be modified.
	ReadRange(start, end uint32) []byte
}

// Bytes is an in-memory Input.
type Bytes []byte

func (b Bytes) Len() uint32 { return uint32(len(b)) }

func (b Bytes) ReadRange(start, end uint32) []byte { return b[start:end] }

// String wraps s as an Input.
func String(s string) Input {
	return Bytes(s)
}

type readerAtInput struct {
	r    io.ReaderAt
	size uint32
}

// FromReaderAt adapts an io.ReaderAt of known size, such as an *os.File or an
// afero.File, into an Input.
func FromReaderAt(r io.ReaderAt, size int64) (Input, error) {
	if size < 0 || size > int64(^uint32(0)) {
		return nil, fmt.Errorf("input size %d out of range", size)
	}
	return &readerAtInput{r: r, size: uint32(size)}, nil
}

func (in *readerAtInput) Len() uint32 { return in.size }

func (in *readerAtInput) ReadRange(start, end uint32) []byte {
	buf := make([]byte, end-start)
	n, _ := in.r.ReadAt(buf, int64(start))
	return buf[:n]
}

// ReadAll copies the whole input into memory.
func ReadAll(in Input) []byte {
	if b, ok := in.(Bytes); ok {
		return b
	}
	return append([]byte(nil), in.ReadRange(0, in.Len())...)
}

// chunkSize is the window Reader fetches from an Input at a time.
const chunkSize = 4096

// Reader gives byte-at-a-time access to an Input, fetching it in chunks.
type Reader struct {
	input Input
	flat  []byte // whole input when it is already in memory
	start uint32
	chunk []byte
}

// NewReader returns a Reader over in.
func NewReader(in Input) *Reader {
	r := &Reader{input: in}
	if b, ok := in.(Bytes); ok {
		r.flat = b
	}
	return r
}

// Len returns the length of the underlying input.
func (r *Reader) Len() uint32 { return r.input.Len() }

// ByteAt returns the byte at offset i and whether i is inside the input.
func (r *Reader) ByteAt(i uint32) (byte, bool) {
	if r.flat != nil {
		if int(i) >= len(r.flat) {
			return 0, false
		}
		return r.flat[i], true
	}
	if i >= r.input.Len() {
		return 0, false
	}
	if i < r.start || i >= r.start+uint32(len(r.chunk)) {
		r.start = i - i%chunkSize
		end := r.start + chunkSize
		if end > r.input.Len() {
			end = r.input.Len()
		}
		r.chunk = r.input.ReadRange(r.start, end)
	}
	if i-r.start >= uint32(len(r.chunk)) {
		return 0, false
	}
	return r.chunk[i-r.start], true
}

// Slice returns the bytes in [start, end).
func (r *Reader) Slice(start, end uint32) []byte {
	if r.flat != nil {
		return r.flat[start:end]
	}
	return r.input.ReadRange(start, end)
}
