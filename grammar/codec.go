package grammar

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// magic starts every encoded table.
var magic = [4]byte{'R', 'P', 'G', 'T'}

// headerSize is the magic plus the major and minor format versions.
const headerSize = 8

// Encode writes t in the binary table format: a fixed header carrying the
// format version followed by a msgpack payload.
func Encode(w io.Writer, t *Table) error {
	var header [headerSize]byte
	copy(header[:4], magic[:])
	binary.BigEndian.PutUint16(header[4:6], t.data.FormatMajor)
	binary.BigEndian.PutUint16(header[6:8], t.data.FormatMinor)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&t.data); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return nil
}

// Marshal returns the binary encoding of t.
func Marshal(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a table written by Encode. The header is checked before the
// payload is decoded, so a table of another major format version fails with
// ErrFormatMismatch without being interpreted.
func Load(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	var header [headerSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidTable, err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidTable, header[:4])
	}
	major := binary.BigEndian.Uint16(header[4:6])
	minor := binary.BigEndian.Uint16(header[6:8])
	if major != FormatMajor {
		return nil, fmt.Errorf("%w: table format %d.%d, supported %d.x", ErrFormatMismatch, major, minor, FormatMajor)
	}

	var s layout
	if err := msgpack.NewDecoder(br).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decode table: %v", ErrInvalidTable, err)
	}
	if s.FormatMajor != major || s.FormatMinor != minor {
		return nil, fmt.Errorf("%w: header says %d.%d, payload says %d.%d",
			ErrFormatMismatch, major, minor, s.FormatMajor, s.FormatMinor)
	}
	return newTable(s)
}

// Unmarshal decodes a table from data.
func Unmarshal(data []byte) (*Table, error) {
	return Load(bytes.NewReader(data))
}
