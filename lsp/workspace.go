package lsp

import (
	"context"
	"fmt"
	"sync"

	"github.com/dhamidi/reparse/config"
	"github.com/dhamidi/reparse/parser"
	"github.com/dhamidi/reparse/source"
	"github.com/dhamidi/reparse/tree"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const diagnosticSource = "reparse"

// Document is an open text document and its syntax tree.
type Document struct {
	URI     protocol.DocumentUri
	Version protocol.Integer
	Text    []byte
	Tree    *tree.Tree

	lines *source.LineIndex
}

// Diagnostics converts the tree's syntax errors to LSP diagnostics, with
// columns in UTF-16 code units.
func (d *Document) Diagnostics() []protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	src := diagnosticSource
	out := []protocol.Diagnostic{}
	for _, e := range d.Tree.Errors() {
		message := "syntax error"
		if e.Kind == tree.DiagnosticMissing {
			message = "missing " + e.Name
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: d.position(e.Range.StartPoint),
				End:   d.position(e.Range.EndPoint),
			},
			Severity: &severity,
			Source:   &src,
			Message:  message,
		})
	}
	return out
}

func (d *Document) position(p source.Point) protocol.Position {
	return protocol.Position{Line: p.Row, Character: d.lines.UTF16Column(p)}
}

// Workspace keeps the open documents parsed.
type Workspace struct {
	parser *parser.Parser
	cfg    config.Config
	log    commonlog.Logger

	mu   sync.Mutex
	docs map[protocol.DocumentUri]*Document
}

// NewWorkspace returns an empty workspace parsing with p.
func NewWorkspace(p *parser.Parser, cfg config.Config) *Workspace {
	return &Workspace{
		parser: p,
		cfg:    cfg,
		log:    commonlog.GetLogger("reparse.lsp"),
		docs:   make(map[protocol.DocumentUri]*Document),
	}
}

// Get returns the open document at uri, or nil.
func (w *Workspace) Get(uri protocol.DocumentUri) *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.docs[uri]
}

// Open parses a newly opened document.
func (w *Workspace) Open(ctx context.Context, uri protocol.DocumentUri, version protocol.Integer, text string) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc, err := w.parse(ctx, uri, version, []byte(text), nil)
	if err != nil {
		return nil, err
	}
	w.docs[uri] = doc
	return doc, nil
}

// Change applies content changes to a document and reparses it, reusing
// what the changes left untouched.
func (w *Workspace) Change(ctx context.Context, uri protocol.DocumentUri, version protocol.Integer, changes []any) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc, ok := w.docs[uri]
	if !ok {
		return nil, fmt.Errorf("change of unknown document %s", uri)
	}

	text := doc.Text
	edited := doc.Tree
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text, edited = []byte(c.Text), nil
				continue
			}
			var edit tree.Edit
			text, edit = applyChange(text, *c.Range, c.Text)
			if edited == nil {
				continue
			}
			var err error
			if edited, err = edited.Edit(edit); err != nil {
				w.log.Warningf("%s: %s; parsing from scratch", uri, err)
				edited = nil
			}
		case protocol.TextDocumentContentChangeEventWhole:
			text, edited = []byte(c.Text), nil
		default:
			w.log.Warningf("%s: ignoring content change of type %T", uri, change)
		}
	}

	updated, err := w.parse(ctx, uri, version, text, edited)
	if err != nil {
		return nil, err
	}
	w.docs[uri] = updated
	return updated, nil
}

// Close forgets a document.
func (w *Workspace) Close(uri protocol.DocumentUri) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.docs, uri)
}

func (w *Workspace) parse(ctx context.Context, uri protocol.DocumentUri, version protocol.Integer, text []byte, old *tree.Tree) (*Document, error) {
	ctx, cancel := w.cfg.WithTimeout(ctx)
	defer cancel()
	t, err := w.parser.Parse(ctx, source.Bytes(text), old)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	w.log.Debugf("parsed %s version %d: %d bytes, %d syntax errors", uri, version, len(text), len(t.Errors()))
	return &Document{
		URI:     uri,
		Version: version,
		Text:    text,
		Tree:    t,
		lines:   source.NewLineIndex(source.Bytes(text)),
	}, nil
}

// applyChange replaces rng, given in UTF-16 positions, with newText. It
// returns a fresh buffer and the matching edit.
func applyChange(text []byte, rng protocol.Range, newText string) ([]byte, tree.Edit) {
	lines := source.NewLineIndex(source.Bytes(text))
	start := lines.OffsetForUTF16(rng.Start.Line, rng.Start.Character)
	end := lines.OffsetForUTF16(rng.End.Line, rng.End.Character)
	if end < start {
		start, end = end, start
	}
	edit := tree.NewEdit(lines, start, end, []byte(newText))

	out := make([]byte, 0, len(text)-int(end-start)+len(newText))
	out = append(out, text[:start]...)
	out = append(out, newText...)
	out = append(out, text[end:]...)
	return out, edit
}
