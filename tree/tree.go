package tree

import (
	"fmt"
	"strings"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/source"
)

// Range is a half-open byte range with the matching points.
type Range struct {
	StartByte  uint32
	EndByte    uint32
	StartPoint source.Point
	EndPoint   source.Point
}

func (r Range) String() string {
	return fmt.Sprintf("[%s-%s]", r.StartPoint, r.EndPoint)
}

// Tree is a parsed document. Trees are immutable; editing a tree returns a
// new one.
type Tree struct {
	root  *Subtree
	table *grammar.Table
	input source.Input
	lines *source.LineIndex

	// edits applied since the tree was parsed, each in the coordinates
	// produced by the one before.
	edits []Edit
}

// New returns a tree over root, parsed from input.
func New(root *Subtree, table *grammar.Table, input source.Input, lines *source.LineIndex) *Tree {
	if lines == nil {
		lines = source.NewLineIndex(input)
	}
	return &Tree{root: root, table: table, input: input, lines: lines}
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &Node{subtree: t.root, tree: t}
}

// RootSubtree returns the root subtree.
func (t *Tree) RootSubtree() *Subtree { return t.root }

// Table returns the grammar table the tree was parsed with.
func (t *Tree) Table() *grammar.Table { return t.table }

// Input returns the text the tree was parsed from. For an edited tree this is
// the text before the edits.
func (t *Tree) Input() source.Input { return t.input }

// Edits returns the edits applied since the tree was parsed.
func (t *Tree) Edits() []Edit { return t.edits }

// Edited reports whether the tree was edited after parsing.
func (t *Tree) Edited() bool { return len(t.edits) > 0 }

// Len returns the number of bytes the tree covers.
func (t *Tree) Len() uint32 { return t.root.size }

// PointAt returns the point of a byte offset in the tree's current
// coordinates.
func (t *Tree) PointAt(offset uint32) source.Point {
	if len(t.edits) == 0 {
		return t.lines.PointAt(offset)
	}
	return editedPoint(t, offset)
}

// OriginalOffset maps an offset in the tree's current coordinates back to the
// text the tree was parsed from. It fails for offsets inside inserted text.
func (t *Tree) OriginalOffset(offset uint32) (uint32, bool) {
	for i := len(t.edits) - 1; i >= 0; i-- {
		e := t.edits[i]
		switch {
		case offset <= e.StartByte:
		case offset >= e.NewEndByte:
			offset = offset - e.NewEndByte + e.OldEndByte
		default:
			return 0, false
		}
	}
	return offset, true
}

// text returns the original bytes of [start, end) in current coordinates, or
// nil if the range was touched by an edit.
func (t *Tree) text(start, end uint32) []byte {
	if len(t.edits) == 0 {
		return t.input.ReadRange(start, end)
	}
	s, ok := t.OriginalOffset(start)
	if !ok {
		return nil
	}
	e, ok := t.OriginalOffset(end)
	if !ok || e-s != end-start {
		return nil
	}
	return t.input.ReadRange(s, e)
}

// Text returns the bytes of [start, end) the tree was parsed from, or nil if
// the range was touched by an edit since.
func (t *Tree) Text(start, end uint32) []byte { return t.text(start, end) }

// String renders the tree as an S-expression.
func (t *Tree) String() string { return t.Root().String() }

// Node is a handle on a subtree at a position in a tree. Hidden auxiliary
// nodes are skipped when navigating: their children appear in their place.
type Node struct {
	subtree *Subtree
	tree    *Tree
	start   uint32
	parent  *Node
	index   int
}

// Subtree returns the underlying subtree.
func (n *Node) Subtree() *Subtree { return n.subtree }

// Tree returns the tree the node belongs to.
func (n *Node) Tree() *Tree { return n.tree }

// Symbol returns the node's grammar symbol.
func (n *Node) Symbol() grammar.Symbol { return n.subtree.symbol }

// Type returns the name of the node's symbol.
func (n *Node) Type() string { return n.tree.table.SymbolName(n.subtree.symbol) }

func (n *Node) StartByte() uint32 { return n.start }
func (n *Node) EndByte() uint32   { return n.start + n.subtree.size }

func (n *Node) StartPoint() source.Point { return n.tree.PointAt(n.StartByte()) }
func (n *Node) EndPoint() source.Point   { return n.tree.PointAt(n.EndByte()) }

// Range returns the node's byte and point range.
func (n *Node) Range() Range {
	return Range{
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: n.StartPoint(),
		EndPoint:   n.EndPoint(),
	}
}

func (n *Node) IsError() bool   { return n.subtree.IsError() }
func (n *Node) IsMissing() bool { return n.subtree.IsMissing() }
func (n *Node) IsExtra() bool   { return n.subtree.IsExtra() }
func (n *Node) IsDamaged() bool { return n.subtree.IsDamaged() }
func (n *Node) HasError() bool  { return n.subtree.HasError() }

// Text returns the node's source text. See Tree.Text for edited trees.
func (n *Node) Text() []byte { return n.tree.text(n.StartByte(), n.EndByte()) }

// Same reports whether n and o are handles on the very same subtree value.
func (n *Node) Same(o *Node) bool {
	return n != nil && o != nil && n.subtree == o.subtree
}

// Equal reports whether n and o have the same shape. See Equal.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return Equal(n.subtree, o.subtree)
}

func (n *Node) hidden(s *Subtree) bool {
	return n.tree.table.Symbol(s.symbol).Kind == grammar.Auxiliary && !s.IsError()
}

// Children returns the visible children.
func (n *Node) Children() []*Node {
	var out []*Node
	var walk func(s *Subtree, start uint32)
	walk = func(s *Subtree, start uint32) {
		for _, c := range s.children {
			if n.hidden(c) {
				walk(c, start)
			} else {
				out = append(out, &Node{subtree: c, tree: n.tree, start: start, parent: n, index: len(out)})
			}
			start += c.size
		}
	}
	walk(n.subtree, n.start)
	return out
}

// ChildCount returns the number of visible children.
func (n *Node) ChildCount() int { return len(n.Children()) }

// Child returns visible child i, or nil.
func (n *Node) Child(i int) *Node {
	children := n.Children()
	if i < 0 || i >= len(children) {
		return nil
	}
	return children[i]
}

// Parent returns the visible parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// NextSibling returns the following visible sibling, or nil.
func (n *Node) NextSibling() *Node {
	if n.parent == nil {
		return nil
	}
	return n.parent.Child(n.index + 1)
}

// PrevSibling returns the preceding visible sibling, or nil.
func (n *Node) PrevSibling() *Node {
	if n.parent == nil {
		return nil
	}
	return n.parent.Child(n.index - 1)
}

// DescendantForByteRange returns the smallest node that contains
// [start, end).
func (n *Node) DescendantForByteRange(start, end uint32) *Node {
	if start < n.StartByte() || end > n.EndByte() {
		return nil
	}
	cur := n
	for {
		var next *Node
		for _, c := range cur.Children() {
			if c.StartByte() <= start && end <= c.EndByte() && (c.subtree.size > 0 || start == end) {
				next = c
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

// Leaves returns the visible terminal descendants in order.
func (n *Node) Leaves() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		children := n.Children()
		if len(children) == 0 {
			out = append(out, n)
			return
		}
		for _, c := range children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// String renders the node as an S-expression.
func (n *Node) String() string {
	var sb strings.Builder
	n.writeSExpr(&sb)
	return sb.String()
}

func (n *Node) writeSExpr(sb *strings.Builder) {
	sb.WriteByte('(')
	if n.IsMissing() {
		sb.WriteString("MISSING ")
	}
	sb.WriteString(n.Type())
	for _, c := range n.Children() {
		sb.WriteByte(' ')
		c.writeSExpr(sb)
	}
	sb.WriteByte(')')
}

// Dump renders the node as an indented outline, one node per line.
func (n *Node) Dump(showPositions bool) string {
	return n.dumpIndent(0, showPositions, nil)
}

// DumpStyled is Dump with a hook that can decorate each line's label, for
// example to color error nodes.
func (n *Node) DumpStyled(showPositions bool, style func(*Node, string) string) string {
	return n.dumpIndent(0, showPositions, style)
}

func (n *Node) dumpIndent(indent int, showPositions bool, style func(*Node, string) string) string {
	prefix := strings.Repeat("  ", indent)

	label := n.Type()
	if n.IsMissing() {
		label = "MISSING " + label
	}
	if style != nil {
		label = style(n, label)
	}
	result := prefix + label
	if showPositions {
		result += " " + n.Range().String()
	}
	children := n.Children()
	if len(children) == 0 && !n.IsMissing() {
		if text := n.Text(); text != nil {
			result += " " + fmt.Sprintf("%q", text)
		}
	}
	result += "\n"

	for _, child := range children {
		result += child.dumpIndent(indent+1, showPositions, style)
	}
	return result
}
