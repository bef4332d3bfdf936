package tree

import (
	"fmt"

	"github.com/dhamidi/reparse/grammar"
)

// Cursor walks the visible nodes of a tree.
type Cursor struct {
	stack []*Node
}

// Walk returns a cursor positioned on n.
func (n *Node) Walk() *Cursor {
	return &Cursor{stack: []*Node{n}}
}

// Node returns the node under the cursor.
func (c *Cursor) Node() *Node { return c.stack[len(c.stack)-1] }

// Depth returns how far the cursor is below the node it started on.
func (c *Cursor) Depth() int { return len(c.stack) - 1 }

// GotoFirstChild moves to the first child of the current node.
func (c *Cursor) GotoFirstChild() bool {
	child := c.Node().Child(0)
	if child == nil {
		return false
	}
	c.stack = append(c.stack, child)
	return true
}

// GotoNextSibling moves to the next sibling of the current node.
func (c *Cursor) GotoNextSibling() bool {
	if len(c.stack) < 2 {
		return false
	}
	next := c.Node().NextSibling()
	if next == nil {
		return false
	}
	c.stack[len(c.stack)-1] = next
	return true
}

// GotoParent moves to the parent of the current node.
func (c *Cursor) GotoParent() bool {
	if len(c.stack) < 2 {
		return false
	}
	c.stack = c.stack[:len(c.stack)-1]
	return true
}

// GotoFirstChildForByte moves to the first child that ends after offset.
func (c *Cursor) GotoFirstChildForByte(offset uint32) bool {
	for _, child := range c.Node().Children() {
		if child.EndByte() > offset {
			c.stack = append(c.stack, child)
			return true
		}
	}
	return false
}

// Visit calls fn for every node in pre-order. Returning false from fn skips
// the node's children.
func (n *Node) Visit(fn func(*Node) bool) {
	c := n.Walk()
	for {
		if fn(c.Node()) && c.GotoFirstChild() {
			continue
		}
		for !c.GotoNextSibling() {
			if !c.GotoParent() {
				return
			}
		}
	}
}

// DiagnosticKind classifies diagnostics.
type DiagnosticKind uint8

const (
	// DiagnosticError is an ERROR node: input that could not be parsed.
	DiagnosticError DiagnosticKind = iota
	// DiagnosticMissing is a terminal the parser had to assume.
	DiagnosticMissing
)

func (k DiagnosticKind) String() string {
	if k == DiagnosticMissing {
		return "missing"
	}
	return "error"
}

// Diagnostic locates a syntax error.
type Diagnostic struct {
	Kind DiagnosticKind
	// Symbol is the missing terminal, or ERROR.
	Symbol grammar.Symbol
	Name   string
	Range  Range
}

func (d Diagnostic) String() string {
	if d.Kind == DiagnosticMissing {
		return fmt.Sprintf("%s: missing %s", d.Range.StartPoint, d.Name)
	}
	return fmt.Sprintf("%s-%s: syntax error", d.Range.StartPoint, d.Range.EndPoint)
}

// Errors lists the outermost ERROR nodes and all missing nodes, in order.
func (t *Tree) Errors() []Diagnostic {
	var out []Diagnostic
	var walk func(s *Subtree, start uint32)
	walk = func(s *Subtree, start uint32) {
		if !s.HasError() {
			return
		}
		switch {
		case s.IsMissing():
			out = append(out, t.diagnostic(DiagnosticMissing, s, start))
			return
		case s.IsError():
			out = append(out, t.diagnostic(DiagnosticError, s, start))
			return
		}
		for _, c := range s.children {
			walk(c, start)
			start += c.size
		}
	}
	walk(t.root, 0)
	return out
}

func (t *Tree) diagnostic(kind DiagnosticKind, s *Subtree, start uint32) Diagnostic {
	end := start + s.size
	return Diagnostic{
		Kind:   kind,
		Symbol: s.symbol,
		Name:   t.table.SymbolName(s.symbol),
		Range: Range{
			StartByte:  start,
			EndByte:    end,
			StartPoint: t.PointAt(start),
			EndPoint:   t.PointAt(end),
		},
	}
}
