package tree

import (
	"errors"
	"fmt"

	"github.com/dhamidi/reparse/source"
)

// ErrMalformedEdit is returned for edit sequences that are out of range,
// overlapping or not in ascending order.
var ErrMalformedEdit = errors.New("malformed edit")

// Edit describes the replacement of [StartByte, OldEndByte) by new text
// ending at NewEndByte.
type Edit struct {
	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  source.Point
	OldEndPoint source.Point
	NewEndPoint source.Point
}

func (e Edit) String() string {
	return fmt.Sprintf("edit [%d,%d) -> [%d,%d)", e.StartByte, e.OldEndByte, e.StartByte, e.NewEndByte)
}

// IsNoop reports whether the edit changes nothing.
func (e Edit) IsNoop() bool {
	return e.StartByte == e.OldEndByte && e.StartByte == e.NewEndByte
}

// NewEdit describes replacing [start, oldEnd) with newText. loc maps offsets
// of the text before the edit to points.
func NewEdit(loc source.Locator, start, oldEnd uint32, newText []byte) Edit {
	sp := loc.PointAt(start)
	np := sp
	for _, b := range newText {
		if b == '\n' {
			np.Row++
			np.Column = 0
		} else {
			np.Column++
		}
	}
	return Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  start + uint32(len(newText)),
		StartPoint:  sp,
		OldEndPoint: loc.PointAt(oldEnd),
		NewEndPoint: np,
	}
}

// ValidateEdits checks a sequence of edits against a text of length bytes.
// Each edit is in the coordinates produced by the one before it, and must
// start at or after the previous edit's new end.
func ValidateEdits(length uint32, edits []Edit) error {
	size := length
	for i, e := range edits {
		switch {
		case e.StartByte > e.OldEndByte || e.StartByte > e.NewEndByte:
			return fmt.Errorf("%w: edit %d: start %d after its end", ErrMalformedEdit, i, e.StartByte)
		case e.OldEndByte > size:
			return fmt.Errorf("%w: edit %d: old end %d past text length %d", ErrMalformedEdit, i, e.OldEndByte, size)
		case i > 0 && e.StartByte < edits[i-1].NewEndByte:
			return fmt.Errorf("%w: edit %d: starts at %d, before the previous edit ends at %d",
				ErrMalformedEdit, i, e.StartByte, edits[i-1].NewEndByte)
		}
		size = size - e.OldEndByte + e.NewEndByte
	}
	return nil
}

// Edit returns a copy of t with edits applied. Subtrees the edits touch,
// including those whose lookahead reaches into an edited range, are copied
// and marked damaged; all others are shared with t. No-op edits are ignored,
// and if every edit is a no-op t itself is returned. A malformed sequence
// is rejected as a whole.
func (t *Tree) Edit(edits ...Edit) (*Tree, error) {
	if err := ValidateEdits(t.root.size, edits); err != nil {
		return nil, err
	}
	root := t.root
	var applied []Edit
	for _, e := range edits {
		if e.IsNoop() {
			continue
		}
		root = editSubtree(root, span{start: e.StartByte, oldEnd: e.OldEndByte, newEnd: e.NewEndByte})
		applied = append(applied, e)
	}
	if len(applied) == 0 {
		return t, nil
	}
	edited := &Tree{
		root:  root,
		table: t.table,
		input: t.input,
		lines: t.lines,
	}
	edited.edits = append(append([]Edit(nil), t.edits...), applied...)
	return edited, nil
}

// span is an edit relative to the start of a subtree.
type span struct {
	start, oldEnd, newEnd uint32
}

func editSubtree(s *Subtree, e span) *Subtree {
	c := s.damaged()
	c.size = s.size - e.oldEnd + e.newEnd
	if len(s.children) == 0 {
		return c
	}
	children := append([]*Subtree(nil), s.children...)
	var childStart uint32
	absorbed := false
	pure := e.start == e.oldEnd
loop:
	for i, child := range s.children {
		childEnd := childStart + child.size
		reach := childEnd + child.lookahead
		last := i == len(s.children)-1
		switch {
		case childStart > e.oldEnd, childStart == e.oldEnd && absorbed:
			break loop
		case childEnd < e.start, childEnd == e.start && !(pure && (reach > e.start || last && !absorbed)):
			// Before the edit, but it may have looked at bytes that changed.
			if reach > e.start {
				at := e.start - childStart
				children[i] = editSubtree(child, span{start: at, oldEnd: at, newEnd: at})
			}
		default:
			ce := span{oldEnd: min(e.oldEnd, childEnd) - childStart}
			if !absorbed {
				// The first child reached takes the new text.
				ce.start = e.start - childStart
				ce.newEnd = e.newEnd - childStart
				absorbed = true
			}
			children[i] = editSubtree(child, ce)
		}
		childStart = childEnd
	}
	c.children = children
	return c
}

// editedPoint maps an offset of an edited tree to a point, starting from the
// original text's line index and shifting through every edit.
func editedPoint(t *Tree, offset uint32) source.Point {
	n := len(t.edits)
	offs := make([]uint32, n+1)
	offs[n] = offset
	inside := -1
	for i := n - 1; i >= 0 && inside < 0; i-- {
		e := t.edits[i]
		o := offs[i+1]
		switch {
		case o <= e.StartByte:
			offs[i] = o
		case o >= e.NewEndByte:
			offs[i] = o - e.NewEndByte + e.OldEndByte
		default:
			inside = i
		}
	}

	var p source.Point
	from := 0
	if inside >= 0 {
		// Inside inserted text; the best known point is the insertion start.
		p = t.edits[inside].StartPoint
		from = inside + 1
	} else {
		p = t.lines.PointAt(offs[0])
	}
	for i := from; i < n; i++ {
		e := t.edits[i]
		if offs[i+1] > e.StartByte && offs[i+1] >= e.NewEndByte {
			p = source.Shift(p, e.OldEndPoint, e.NewEndPoint)
		}
	}
	return p
}
