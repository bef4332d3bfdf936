// Package lex turns input bytes into tokens for the parse engine.
//
// Token patterns are the EBNF productions of a table's lexicon. At every
// position the lexer tries the token rules valid in the parser's current lex
// mode, plus the extras, and returns the longest match. Ties go to the rule
// with the higher priority and then to the rule declared first. An external
// scanner registered for the table runs before the pattern rules whenever one
// of its tokens is valid.
package lex

import (
	"fmt"
	"unicode/utf8"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/source"
	"golang.org/x/exp/ebnf"
)

// Token is a terminal produced by the lexer.
type Token struct {
	Symbol     grammar.Symbol
	Start      uint32
	End        uint32
	StartPoint source.Point
	EndPoint   source.Point

	// Mode is the lex mode the token was scanned in.
	Mode grammar.LexModeID

	// Lookahead is the number of bytes past End the lexer examined while
	// deciding on this token. Edits inside that window can change the token.
	Lookahead uint32

	// ExtState is the external scanner state before the token, ExtAfter the
	// state after it.
	ExtState []byte
	ExtAfter []byte
}

func (t Token) String() string {
	return fmt.Sprintf("%s %d-%d", t.StartPoint, t.Start, t.End)
}

// Size returns the token's length in bytes.
func (t Token) Size() uint32 { return t.End - t.Start }

// memoKey is used for memoization of match results.
type memoKey struct {
	name   string
	offset uint32
}

// Lexer tokenizes one input with one table.
type Lexer struct {
	table    *grammar.Table
	lexicon  ebnf.Grammar
	input    *source.Reader
	lines    *source.LineIndex
	external ExternalScanner
	memo     map[memoKey]int  // memoization cache: key -> match length (-1 = no match)
	visiting map[memoKey]bool // cycle detection
	furthest uint32           // one past the furthest byte examined
}

// Option configures a Lexer.
type Option func(*Lexer)

// WithExternalScanner overrides the external scanner registered for the table.
func WithExternalScanner(s ExternalScanner) Option {
	return func(l *Lexer) {
		l.external = s
	}
}

// WithLineIndex shares an existing line index of the input.
func WithLineIndex(idx *source.LineIndex) Option {
	return func(l *Lexer) {
		l.lines = idx
	}
}

// NewLexer creates a lexer for table over input.
func NewLexer(table *grammar.Table, input source.Input, opts ...Option) (*Lexer, error) {
	l := &Lexer{
		table:   table,
		lexicon: table.Lexicon(),
		input:   source.NewReader(input),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.lines == nil {
		l.lines = source.NewLineIndex(input)
	}
	if l.external == nil && table.ExternalScanner() != "" {
		ext, err := lookupExternal(table)
		if err != nil {
			return nil, err
		}
		l.external = ext
	}
	return l, nil
}

// Len returns the input length.
func (l *Lexer) Len() uint32 { return l.input.Len() }

// Lines returns the line index of the input.
func (l *Lexer) Lines() *source.LineIndex { return l.lines }

// Next scans the token starting at pos in mode. ext is the external scanner
// state at pos. At the end of input the end token is returned; where no rule
// matches a one code point ERROR token is returned.
func (l *Lexer) Next(pos uint32, mode grammar.LexModeID, ext []byte) Token {
	tok := Token{Start: pos, Mode: mode, ExtState: ext, ExtAfter: ext}
	size := l.input.Len()
	if pos >= size {
		tok.Symbol = grammar.SymbolEnd
		tok.Start, tok.End = size, size
		tok.Lookahead = 1
		tok.StartPoint = l.lines.PointAt(size)
		tok.EndPoint = tok.StartPoint
		return tok
	}

	l.memo = make(map[memoKey]int)
	l.furthest = pos
	valid := l.table.ValidSymbols(mode)

	if l.external != nil && l.anyExternalValid(valid) {
		cur := &Cursor{lexer: l, start: pos, valid: l.validSet(valid)}
		if res, ok := l.external.Scan(cur, ext); ok && res.Length > 0 {
			tok.Symbol = res.Symbol
			tok.End = pos + res.Length
			tok.ExtAfter = res.State
			return l.finish(tok)
		}
	}

	bestLen := 0
	bestPriority := 0
	var bestSym grammar.Symbol
	try := func(sym grammar.Symbol) {
		rule, ok := l.table.TokenRule(sym)
		if !ok {
			return
		}
		prod := l.lexicon[rule.Production]
		if prod == nil || prod.Expr == nil {
			return
		}
		l.visiting = make(map[memoKey]bool)
		n := l.tryMatch(prod.Expr, pos)
		if n <= 0 {
			return
		}
		switch {
		case n > bestLen,
			n == bestLen && rule.Priority > bestPriority,
			n == bestLen && rule.Priority == bestPriority && sym < bestSym:
			bestLen, bestPriority, bestSym = n, rule.Priority, sym
		}
	}
	for _, sym := range valid {
		try(sym)
	}
	for _, sym := range l.table.Extras() {
		try(sym)
	}

	if bestLen == 0 {
		// No match - emit a single code point as error token
		tok.Symbol = grammar.SymbolError
		tok.End = pos + l.codePointLen(pos)
		return l.finish(tok)
	}
	tok.Symbol = bestSym
	tok.End = pos + uint32(bestLen)
	return l.finish(tok)
}

func (l *Lexer) finish(tok Token) Token {
	if l.furthest < tok.End {
		l.furthest = tok.End
	}
	tok.Lookahead = l.furthest - tok.End
	tok.StartPoint = l.lines.PointAt(tok.Start)
	tok.EndPoint = l.lines.PointAt(tok.End)
	return tok
}

func (l *Lexer) codePointLen(pos uint32) uint32 {
	var buf [utf8.UTFMax]byte
	n := 0
	for ; n < utf8.UTFMax; n++ {
		b, ok := l.byteAt(pos + uint32(n))
		if !ok {
			break
		}
		buf[n] = b
	}
	_, size := utf8.DecodeRune(buf[:n])
	if size < 1 {
		size = 1
	}
	return uint32(size)
}

func (l *Lexer) anyExternalValid(valid []grammar.Symbol) bool {
	for _, sym := range valid {
		if l.table.Symbol(sym).External {
			return true
		}
	}
	for _, sym := range l.table.Extras() {
		if l.table.Symbol(sym).External {
			return true
		}
	}
	return false
}

func (l *Lexer) validSet(valid []grammar.Symbol) []bool {
	set := make([]bool, l.table.SymbolCount())
	for _, sym := range valid {
		set[sym] = true
	}
	for _, sym := range l.table.Extras() {
		set[sym] = true
	}
	return set
}

// byteAt reads the byte at i, recording that it was examined.
func (l *Lexer) byteAt(i uint32) (byte, bool) {
	if i+1 > l.furthest {
		l.furthest = i + 1
	}
	return l.input.ByteAt(i)
}

// tryMatch attempts to match an expression at the given offset.
// Returns the length of the match, or -1 if there is no match.
func (l *Lexer) tryMatch(expr ebnf.Expression, offset uint32) int {
	switch e := expr.(type) {
	case *ebnf.Token:
		return l.tryMatchToken(e.String, offset)

	case *ebnf.Range:
		return l.tryMatchRange(e.Begin.String, e.End.String, offset)

	case ebnf.Sequence:
		total := 0
		pos := offset
		for _, item := range e {
			n := l.tryMatch(item, pos)
			if n < 0 {
				return -1
			}
			total += n
			pos += uint32(n)
		}
		return total

	case ebnf.Alternative:
		best := -1
		for _, alt := range e {
			if n := l.tryMatch(alt, offset); n > best {
				best = n
			}
		}
		return best

	case *ebnf.Repetition:
		total := 0
		pos := offset
		for {
			n := l.tryMatch(e.Body, pos)
			if n <= 0 {
				break
			}
			total += n
			pos += uint32(n)
		}
		return total

	case *ebnf.Option:
		// Option always succeeds (returns 0 if body doesn't match)
		if n := l.tryMatch(e.Body, offset); n > 0 {
			return n
		}
		return 0

	case *ebnf.Group:
		return l.tryMatch(e.Body, offset)

	case *ebnf.Name:
		return l.tryMatchName(e.String, offset)

	default:
		return -1
	}
}

// tryMatchName matches a named production with memoization and cycle detection.
func (l *Lexer) tryMatchName(name string, offset uint32) int {
	key := memoKey{name: name, offset: offset}
	if result, ok := l.memo[key]; ok {
		return result
	}
	// Left recursion at the same offset cannot make progress.
	if l.visiting[key] {
		return -1
	}
	prod, ok := l.lexicon[name]
	if !ok || prod.Expr == nil {
		l.memo[key] = -1
		return -1
	}

	l.visiting[key] = true
	result := l.tryMatch(prod.Expr, offset)
	delete(l.visiting, key)

	l.memo[key] = result
	return result
}

// tryMatchToken matches a literal string.
func (l *Lexer) tryMatchToken(lit string, offset uint32) int {
	for i := 0; i < len(lit); i++ {
		b, ok := l.byteAt(offset + uint32(i))
		if !ok || b != lit[i] {
			return -1
		}
	}
	return len(lit)
}

// tryMatchRange matches one code point between begin and end inclusive.
func (l *Lexer) tryMatchRange(begin, end string, offset uint32) int {
	lo, _ := utf8.DecodeRuneInString(begin)
	hi, _ := utf8.DecodeRuneInString(end)
	var buf [utf8.UTFMax]byte
	n := 0
	for ; n < utf8.UTFMax; n++ {
		b, ok := l.byteAt(offset + uint32(n))
		if !ok {
			break
		}
		buf[n] = b
		if utf8.FullRune(buf[:n+1]) {
			n++
			break
		}
	}
	if n == 0 {
		return -1
	}
	r, size := utf8.DecodeRune(buf[:n])
	if r == utf8.RuneError && size <= 1 {
		if lo < utf8.RuneSelf && hi < utf8.RuneSelf && buf[0] >= byte(lo) && buf[0] <= byte(hi) {
			return 1
		}
		return -1
	}
	if r >= lo && r <= hi {
		return size
	}
	return -1
}

// Tokenize scans the whole input in mode, mostly useful for debugging and
// tests.
func (l *Lexer) Tokenize(mode grammar.LexModeID) []Token {
	var tokens []Token
	var pos uint32
	var ext []byte
	for {
		tok := l.Next(pos, mode, ext)
		tokens = append(tokens, tok)
		if tok.Symbol == grammar.SymbolEnd {
			return tokens
		}
		pos, ext = tok.End, tok.ExtAfter
	}
}
