// Package tree provides the concrete syntax trees produced by the parser.
//
// A tree is built from immutable subtrees. A subtree knows only its size in
// bytes, never its absolute position, so the same subtree can appear in many
// trees at different offsets: an incremental reparse shares every subtree it
// did not have to rebuild with the previous tree. Absolute ranges are derived
// while navigating, through Node handles.
package tree

import (
	"github.com/dhamidi/reparse/grammar"
)

// Flags record properties of a subtree.
type Flags uint8

const (
	// FlagError marks ERROR nodes, which wrap input the parser had to skip.
	FlagError Flags = 1 << iota
	// FlagMissing marks zero-width terminals inserted by error recovery.
	FlagMissing
	// FlagExtra marks extras such as whitespace and comments.
	FlagExtra
	// FlagDamaged marks subtrees touched by an edit. They are never reused.
	FlagDamaged
	// FlagHasError is set on every subtree containing an error or missing node.
	FlagHasError
	// FlagFragile marks subtrees whose shape depended on error recovery:
	// nodes reduced while recovering or with a lookahead that failed, tokens
	// scanned for recovery, and every node containing one. They are never
	// reused.
	FlagFragile
)

// Subtree is an immutable node of a syntax tree.
type Subtree struct {
	symbol    grammar.Symbol
	flags     Flags
	size      uint32
	lookahead uint32
	children  []*Subtree

	// Parse context the subtree was built in, checked before reuse.
	state    grammar.StateID
	lexMode  grammar.LexModeID
	follow   grammar.LexModeID
	extStart []byte
	extEnd   []byte
}

// Info carries the parse context of a new subtree.
type Info struct {
	// State is the parse state an internal node is pushed onto. Leaves do
	// not record it.
	State grammar.StateID
	// LexMode is the lex mode of the first token. Internal nodes take it
	// from their first child unless they are empty.
	LexMode grammar.LexModeID
	// FollowMode is the lex mode the token after the subtree was scanned in.
	FollowMode grammar.LexModeID
	// Lookahead is the number of bytes past the subtree's end that influenced
	// it. Internal nodes also cover the lookahead of their children.
	Lookahead uint32
	// ExtStart and ExtEnd are the external scanner states before and after
	// the subtree. Internal nodes take them from their children unless empty.
	ExtStart []byte
	ExtEnd   []byte
	// Fragile marks the subtree as shaped by error recovery. Internal nodes
	// are also fragile when any child is.
	Fragile bool
}

// NewLeaf returns a terminal of size bytes.
func NewLeaf(sym grammar.Symbol, size uint32, extra bool, info Info) *Subtree {
	s := &Subtree{
		symbol:    sym,
		size:      size,
		lookahead: info.Lookahead,
		lexMode:   info.LexMode,
		follow:    info.FollowMode,
		extStart:  info.ExtStart,
		extEnd:    info.ExtEnd,
	}
	if extra {
		s.flags |= FlagExtra
	}
	if info.Fragile {
		s.flags |= FlagFragile
	}
	if sym == grammar.SymbolError {
		s.flags |= FlagError | FlagHasError
	}
	return s
}

// NewMissing returns a zero-width terminal standing in for sym.
func NewMissing(sym grammar.Symbol, info Info) *Subtree {
	s := NewLeaf(sym, 0, false, info)
	s.flags |= FlagMissing | FlagHasError
	return s
}

// NewNode returns an internal node over children.
func NewNode(sym grammar.Symbol, children []*Subtree, info Info) *Subtree {
	s := &Subtree{
		symbol:   sym,
		children: children,
		state:    info.State,
		lexMode:  info.LexMode,
		follow:   info.FollowMode,
		extStart: info.ExtStart,
		extEnd:   info.ExtEnd,
	}
	var reach uint32
	for _, c := range children {
		if r := s.size + c.size + c.lookahead; r > reach {
			reach = r
		}
		s.size += c.size
		s.flags |= c.flags & (FlagHasError | FlagFragile)
	}
	if info.Fragile {
		s.flags |= FlagFragile
	}
	if r := s.size + info.Lookahead; r > reach {
		reach = r
	}
	s.lookahead = reach - s.size
	if len(children) > 0 {
		s.lexMode = children[0].lexMode
		s.extStart = children[0].extStart
		s.extEnd = children[len(children)-1].extEnd
	}
	if sym == grammar.SymbolError {
		s.flags |= FlagError | FlagHasError
	}
	return s
}

// NewError returns an ERROR node wrapping children.
func NewError(children []*Subtree, info Info) *Subtree {
	return NewNode(grammar.SymbolError, children, info)
}

// Symbol returns the subtree's grammar symbol.
func (s *Subtree) Symbol() grammar.Symbol { return s.symbol }

// Size returns the number of bytes the subtree covers.
func (s *Subtree) Size() uint32 { return s.size }

// Lookahead returns how many bytes past the end influenced the subtree.
func (s *Subtree) Lookahead() uint32 { return s.lookahead }

// Flags returns the subtree's flags.
func (s *Subtree) Flags() Flags { return s.flags }

func (s *Subtree) IsError() bool   { return s.flags&FlagError != 0 }
func (s *Subtree) IsMissing() bool { return s.flags&FlagMissing != 0 }
func (s *Subtree) IsExtra() bool   { return s.flags&FlagExtra != 0 }
func (s *Subtree) IsDamaged() bool { return s.flags&FlagDamaged != 0 }
func (s *Subtree) HasError() bool  { return s.flags&FlagHasError != 0 }
func (s *Subtree) IsFragile() bool { return s.flags&FlagFragile != 0 }

// IsLeaf reports whether the subtree has no children.
func (s *Subtree) IsLeaf() bool { return len(s.children) == 0 }

// ChildCount returns the number of direct children, hidden ones included.
func (s *Subtree) ChildCount() int { return len(s.children) }

// Child returns direct child i.
func (s *Subtree) Child(i int) *Subtree { return s.children[i] }

// State returns the parse state an internal node was pushed onto.
func (s *Subtree) State() grammar.StateID { return s.state }

// LexMode returns the lex mode the subtree's first token was scanned in.
func (s *Subtree) LexMode() grammar.LexModeID { return s.lexMode }

// FollowMode returns the lex mode of the token that followed the subtree.
func (s *Subtree) FollowMode() grammar.LexModeID { return s.follow }

// ExtStart returns the external scanner state before the subtree.
func (s *Subtree) ExtStart() []byte { return s.extStart }

// ExtEnd returns the external scanner state after the subtree.
func (s *Subtree) ExtEnd() []byte { return s.extEnd }

// Fragile returns a copy of s marked fragile, together with the subtrees on
// its right edge. Those end where s ends, so they were built with the same
// lookahead token.
func Fragile(s *Subtree) *Subtree {
	c := *s
	c.flags |= FlagFragile
	if n := len(s.children); n > 0 {
		children := append([]*Subtree(nil), s.children...)
		children[n-1] = Fragile(children[n-1])
		c.children = children
	}
	return &c
}

// damaged returns a shallow copy of s marked as damaged.
func (s *Subtree) damaged() *Subtree {
	c := *s
	c.flags |= FlagDamaged
	return &c
}

// Equal reports whether a and b have the same shape: symbols, sizes, error,
// missing and extra flags, and children. Parse context is ignored.
func Equal(a, b *Subtree) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	const shape = FlagError | FlagMissing | FlagExtra
	if a.symbol != b.symbol || a.size != b.size || a.flags&shape != b.flags&shape {
		return false
	}
	if len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

// SharedNodes counts the subtrees of b that are the very same values as a
// subtree of a. A subtree shared as a whole counts with all its descendants.
func SharedNodes(a, b *Tree) int {
	if a == nil || b == nil {
		return 0
	}
	seen := make(map[*Subtree]bool)
	var mark func(s *Subtree)
	mark = func(s *Subtree) {
		seen[s] = true
		for _, c := range s.children {
			mark(c)
		}
	}
	mark(a.root)

	shared := 0
	var count func(s *Subtree)
	count = func(s *Subtree) {
		if seen[s] {
			shared++
		}
		for _, c := range s.children {
			count(c)
		}
	}
	count(b.root)
	return shared
}

// Leaves returns the terminals under s in order, hidden ones included.
func (s *Subtree) Leaves() []*Subtree {
	var out []*Subtree
	var walk func(s *Subtree)
	walk = func(s *Subtree) {
		if len(s.children) == 0 {
			out = append(out, s)
			return
		}
		for _, c := range s.children {
			walk(c)
		}
	}
	walk(s)
	return out
}
