package parser

import (
	"bytes"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/tree"
)

type reuseFrame struct {
	node  *tree.Subtree
	start uint32
}

// reuseCursor walks the subtrees of a previous tree in pre-order, caching
// the ones that start at the current token position.
type reuseCursor struct {
	old   *tree.Tree
	stack []reuseFrame
	next  *reuseFrame

	cachedStart      uint32
	cachedStartValid bool
	cached           []*tree.Subtree
}

func newReuseCursor(old *tree.Tree) *reuseCursor {
	return &reuseCursor{
		old:   old,
		stack: []reuseFrame{{node: old.RootSubtree()}},
	}
}

// candidates returns the non-empty subtrees starting at start, outermost
// first. Positions must not decrease between calls.
func (c *reuseCursor) candidates(start uint32) []*tree.Subtree {
	if c.cachedStartValid {
		if start == c.cachedStart {
			return c.cached
		}
		if start < c.cachedStart {
			return nil
		}
	}

	c.cached = c.cached[:0]
	c.cachedStart = start
	c.cachedStartValid = true

	for {
		f := c.peek()
		if f == nil {
			return c.cached
		}
		if f.start < start {
			c.pop()
			continue
		}
		if f.start > start {
			return c.cached
		}
		for {
			f = c.peek()
			if f == nil || f.start != start {
				return c.cached
			}
			c.cached = append(c.cached, c.pop().node)
		}
	}
}

func (c *reuseCursor) peek() *reuseFrame {
	if c.next == nil {
		c.next = c.advance()
	}
	return c.next
}

func (c *reuseCursor) pop() *reuseFrame {
	f := c.peek()
	c.next = nil
	return f
}

func (c *reuseCursor) advance() *reuseFrame {
	for len(c.stack) > 0 {
		last := len(c.stack) - 1
		frame := c.stack[last]
		c.stack = c.stack[:last]

		cur := frame.node
		end := frame.start + cur.Size()
		for i := cur.ChildCount() - 1; i >= 0; i-- {
			child := cur.Child(i)
			end -= child.Size()
			c.stack = append(c.stack, reuseFrame{node: child, start: end})
		}
		if cur.Size() == 0 {
			continue
		}
		return &frame
	}
	return nil
}

// reuseNode pushes the largest reusable internal subtree at the current
// position. A subtree is reusable when no edit touched it, it holds no
// errors, recovery did not shape it, and it was built in the same parse
// state and lex context.
func (r *run) reuseNode() bool {
	top := r.top().state
	mode := r.lexMode()
	for _, n := range r.reuse.candidates(r.pos) {
		if n.IsLeaf() || n.IsDamaged() || n.HasError() || n.IsFragile() {
			continue
		}
		if n.State() != top || n.LexMode() != mode || !bytes.Equal(n.ExtStart(), r.ext) {
			continue
		}
		state, ok := r.table.Goto(top, n.Symbol())
		if !ok {
			continue
		}
		r.push(entry{state: state, node: n, end: r.pos + n.Size()})
		r.pos += n.Size()
		r.ext = n.ExtEnd()
		r.follow = n.FollowMode()
		r.hasFollow = true
		r.reusedNodes++
		return true
	}
	return false
}

// next returns the token at the current position in mode. An undamaged old
// leaf scanned in the same context is taken as is; otherwise the token is
// scanned, and if it matches an old leaf exactly that leaf is shared.
func (r *run) next(mode grammar.LexModeID) token {
	var candidates []*tree.Subtree
	if r.reuse != nil && !r.recovering {
		candidates = r.reuse.candidates(r.pos)
	}
	for _, n := range candidates {
		if !n.IsLeaf() || n.IsDamaged() || n.HasError() || n.IsFragile() {
			continue
		}
		if n.LexMode() != mode || !bytes.Equal(n.ExtStart(), r.ext) {
			continue
		}
		r.reusedLeaves++
		return token{
			sym:       n.Symbol(),
			start:     r.pos,
			end:       r.pos + n.Size(),
			lookahead: n.Lookahead(),
			mode:      mode,
			extBefore: r.ext,
			extAfter:  n.ExtEnd(),
			leaf:      n,
		}
	}

	tok := tokenFrom(r.lexer.Next(r.pos, mode, r.ext))
	for _, n := range candidates {
		if r.sameLeaf(n, &tok) {
			tok.leaf = n
			r.reusedLeaves++
			break
		}
	}
	return tok
}

// sameLeaf reports whether the old leaf n is indistinguishable from tok.
func (r *run) sameLeaf(n *tree.Subtree, tok *token) bool {
	if !n.IsLeaf() || n.HasError() || n.IsFragile() {
		return false
	}
	if n.Symbol() != tok.sym || n.Size() != tok.end-tok.start || n.Lookahead() != tok.lookahead {
		return false
	}
	if n.LexMode() != tok.mode || !bytes.Equal(n.ExtStart(), tok.extBefore) || !bytes.Equal(n.ExtEnd(), tok.extAfter) {
		return false
	}
	old := r.reuse.old.Text(tok.start, tok.end)
	return old != nil && bytes.Equal(old, r.input.ReadRange(tok.start, tok.end))
}
