// Package parser turns text into syntax trees with a table-driven LR engine.
//
// A Parser is configured once with a grammar table and then used for any
// number of parses, concurrently if needed: all per-parse state lives in the
// call. Parse never rejects input. Text the grammar cannot explain ends up in
// ERROR nodes and assumed terminals appear as missing nodes, so every byte of
// the input is covered by exactly one leaf of the result.
//
// Incremental parsing starts from a previous tree. Reparse applies edits to
// it and parses the new text, reusing every old subtree the edits did not
// touch and whose parse context is unchanged. The result is the same tree a
// fresh parse would produce.
//
//	p, err := parser.New(table)
//	t, err := p.Parse(ctx, source.String("1+2"), nil)
//	edit := tree.NewEdit(t, 1, 2, []byte("-"))
//	t2, err := p.Reparse(ctx, t, []tree.Edit{edit}, source.String("1-2"))
package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/lex"
	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
	"github.com/tliron/commonlog"
)

// ErrCancelled is returned when a parse is stopped by its context or by the
// operation limit. No tree is returned in that case.
var ErrCancelled = errors.New("parse cancelled")

// Defaults for the parser limits.
const (
	DefaultCheckInterval   = 100
	DefaultRecoveryHorizon = 5
)

// Parser parses text with one grammar table.
type Parser struct {
	table          *grammar.Table
	log            commonlog.Logger
	operationLimit int
	checkInterval  int
	horizon        int
	external       lex.ExternalScanner
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger for recovery and reuse details.
func WithLogger(log commonlog.Logger) Option {
	return func(p *Parser) {
		p.log = log
	}
}

// WithOperationLimit stops parses after n parser operations. Zero means no
// limit.
func WithOperationLimit(n int) Option {
	return func(p *Parser) {
		p.operationLimit = n
	}
}

// WithCheckInterval sets how many operations run between checks of the
// context and the operation limit.
func WithCheckInterval(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.checkInterval = n
		}
	}
}

// WithRecoveryHorizon sets how many tokens error recovery looks ahead.
func WithRecoveryHorizon(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.horizon = n
		}
	}
}

// WithExternalScanner overrides the external scanner registered for the
// table.
func WithExternalScanner(s lex.ExternalScanner) Option {
	return func(p *Parser) {
		p.external = s
	}
}

// New returns a parser for table.
func New(table *grammar.Table, opts ...Option) (*Parser, error) {
	if err := grammar.Check(table); err != nil {
		return nil, err
	}
	p := &Parser{
		table:         table,
		log:           commonlog.GetLogger("reparse.parser"),
		checkInterval: DefaultCheckInterval,
		horizon:       DefaultRecoveryHorizon,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Table returns the parser's grammar table.
func (p *Parser) Table() *grammar.Table { return p.table }

// Parse parses input. If old is not nil it must describe input: either a
// tree of the same text, or a tree edited to match it. Its undamaged
// subtrees are reused.
func (p *Parser) Parse(ctx context.Context, input source.Input, old *tree.Tree) (*tree.Tree, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lines := source.NewLineIndex(input)
	opts := []lex.Option{lex.WithLineIndex(lines)}
	if p.external != nil {
		opts = append(opts, lex.WithExternalScanner(p.external))
	}
	lexer, err := lex.NewLexer(p.table, input, opts...)
	if err != nil {
		return nil, err
	}

	r := &run{
		parser: p,
		ctx:    ctx,
		table:  p.table,
		lexer:  lexer,
		input:  input,
	}
	if old != nil {
		switch {
		case old.Table() != p.table:
			p.log.Warningf("previous tree uses another table; parsing from scratch")
		case old.Len() != input.Len():
			p.log.Warningf("previous tree covers %d bytes, input has %d; parsing from scratch", old.Len(), input.Len())
		default:
			r.reuse = newReuseCursor(old)
		}
	}

	root, err := r.parse()
	if err != nil {
		return nil, err
	}
	if r.reuse != nil {
		p.log.Debugf("reused %d subtrees and %d leaves", r.reusedNodes, r.reusedLeaves)
	}
	return tree.New(root, p.table, input, lines), nil
}

// Reparse applies edits to old and parses input, the text after the edits.
// A malformed edit sequence fails with tree.ErrMalformedEdit and leaves old
// untouched.
func (p *Parser) Reparse(ctx context.Context, old *tree.Tree, edits []tree.Edit, input source.Input) (*tree.Tree, error) {
	edited, err := old.Edit(edits...)
	if err != nil {
		return nil, fmt.Errorf("reparse: %w", err)
	}
	return p.Parse(ctx, input, edited)
}
