// Package lsp serves syntax diagnostics over the Language Server Protocol.
// Documents are synchronized incrementally and reparsed with the previous
// tree, so each keystroke only re-lexes and re-parses around the change.
package lsp

import (
	"context"

	"github.com/dhamidi/reparse/config"
	"github.com/dhamidi/reparse/grammar"
	"github.com/dhamidi/reparse/parser"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple"
)

const lsName = "reparse"

// Server is a language server that publishes syntax diagnostics for open documents.
type Server struct {
	workspace *Workspace
	handler   protocol.Handler
	server    *server.Server
	version   string
	log       commonlog.Logger
}

// NewServer returns a language server for documents in the language of
// table.
func NewServer(table *grammar.Table, cfg config.Config, version string) (*Server, error) {
	opts := append(cfg.ParserOptions(), parser.WithLogger(commonlog.GetLogger("reparse.parser")))
	p, err := parser.New(table, opts...)
	if err != nil {
		return nil, err
	}
	ls := &Server{
		workspace: NewWorkspace(p, cfg),
		version:   version,
		log:       commonlog.GetLogger("reparse.lsp"),
	}

	ls.handler = protocol.Handler{
		Initialize:            ls.initialize,
		Initialized:           ls.initialized,
		Shutdown:              ls.shutdown,
		SetTrace:              ls.setTrace,
		TextDocumentDidOpen:   ls.textDocumentDidOpen,
		TextDocumentDidChange: ls.textDocumentDidChange,
		TextDocumentDidClose:  ls.textDocumentDidClose,
	}

	ls.server = server.NewServer(&ls.handler, lsName, false)

	return ls, nil
}

// Workspace returns the server's open documents.
func (ls *Server) Workspace() *Workspace { return ls.workspace }

func (ls *Server) RunStdio() error {
	return ls.server.RunStdio()
}

func (ls *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := ls.handler.CreateServerCapabilities()

	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    syncKindPtr(protocol.TextDocumentSyncKindIncremental),
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &ls.version,
		},
	}, nil
}

func (ls *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (ls *Server) shutdown(ctx *glsp.Context) error {
	return nil
}

func (ls *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	item := params.TextDocument
	doc, err := ls.workspace.Open(context.Background(), item.URI, item.Version, item.Text)
	if err != nil {
		ls.log.Errorf("%s", err)
		return nil
	}
	ls.publish(ctx, doc)
	return nil
}

func (ls *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	id := params.TextDocument
	doc, err := ls.workspace.Change(context.Background(), id.URI, id.Version, params.ContentChanges)
	if err != nil {
		ls.log.Errorf("%s", err)
		return nil
	}
	ls.publish(ctx, doc)
	return nil
}

func (ls *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	ls.workspace.Close(uri)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (ls *Server) publish(ctx *glsp.Context, doc *Document) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         doc.URI,
		Diagnostics: doc.Diagnostics(),
	})
}

func boolPtr(b bool) *bool {
	return &b
}

func syncKindPtr(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
