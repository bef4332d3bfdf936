package source

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Point is a zero-based row and UTF-8 byte column.
type Point struct {
	Row    uint32
	Column uint32
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Less reports whether p comes before q.
func (p Point) Less(q Point) bool {
	return p.Row < q.Row || (p.Row == q.Row && p.Column < q.Column)
}

// Shift moves p, a point at or after oldEnd, so that it keeps its distance to
// the end of a replaced range whose end moved from oldEnd to newEnd.
func Shift(p, oldEnd, newEnd Point) Point {
	if p.Row == oldEnd.Row {
		return Point{Row: newEnd.Row, Column: newEnd.Column + p.Column - oldEnd.Column}
	}
	return Point{Row: p.Row - oldEnd.Row + newEnd.Row, Column: p.Column}
}

// Locator maps byte offsets to points.
type Locator interface {
	PointAt(offset uint32) Point
}

// LineIndex records where every row of an input starts.
type LineIndex struct {
	input  Input
	starts []uint32
	size   uint32
}

// NewLineIndex scans in once and indexes its row starts.
func NewLineIndex(in Input) *LineIndex {
	idx := &LineIndex{input: in, starts: []uint32{0}, size: in.Len()}
	for start := uint32(0); start < idx.size; start += chunkSize {
		end := start + chunkSize
		if end > idx.size {
			end = idx.size
		}
		for i, b := range in.ReadRange(start, end) {
			if b == '\n' {
				idx.starts = append(idx.starts, start+uint32(i)+1)
			}
		}
	}
	return idx
}

// Rows returns the number of rows, which is one more than the number of newlines.
func (idx *LineIndex) Rows() int {
	return len(idx.starts)
}

// PointAt converts a byte offset into a point. Offsets past the end are clamped.
func (idx *LineIndex) PointAt(offset uint32) Point {
	if offset > idx.size {
		offset = idx.size
	}
	row := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > offset }) - 1
	return Point{Row: uint32(row), Column: offset - idx.starts[row]}
}

// OffsetAt converts a point into a byte offset. Columns past the end of a row
// are clamped to the row end.
func (idx *LineIndex) OffsetAt(p Point) uint32 {
	if int(p.Row) >= len(idx.starts) {
		return idx.size
	}
	start := idx.starts[p.Row]
	end := idx.rowEnd(int(p.Row))
	if start+p.Column > end {
		return end
	}
	return start + p.Column
}

// rowEnd returns the offset of the newline ending row, or the input size.
func (idx *LineIndex) rowEnd(row int) uint32 {
	if row+1 < len(idx.starts) {
		return idx.starts[row+1] - 1
	}
	return idx.size
}

// UTF16Column returns the column of p counted in UTF-16 code units.
func (idx *LineIndex) UTF16Column(p Point) uint32 {
	if int(p.Row) >= len(idx.starts) {
		return 0
	}
	start := idx.starts[p.Row]
	end := idx.OffsetAt(p)
	line := idx.input.ReadRange(start, end)
	var units uint32
	for len(line) > 0 {
		r, size := utf8.DecodeRune(line)
		line = line[size:]
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// OffsetForUTF16 converts a row and a UTF-16 column into a byte offset.
func (idx *LineIndex) OffsetForUTF16(row, column uint32) uint32 {
	if int(row) >= len(idx.starts) {
		return idx.size
	}
	start := idx.starts[row]
	line := idx.input.ReadRange(start, idx.rowEnd(int(row)))
	var units uint32
	offset := start
	for len(line) > 0 && units < column {
		r, size := utf8.DecodeRune(line)
		line = line[size:]
		offset += uint32(size)
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return offset
}
