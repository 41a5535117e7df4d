package server

import (
	"context"
	"log/slog"

	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/document"
	"github.com/corymhall/textlsp/lsp"
)

func (s *server) DidOpen(ctx context.Context, params *lsp.DidOpenTextDocumentParams) error {
	if !s.acceptNotification("textDocument/didOpen") {
		return nil
	}
	doc := params.TextDocument
	ctx, done := debug.Start(ctx, "textdocument.didOpen", slog.String("uri", string(doc.URI)))
	defer done()
	return s.store.Open(ctx, doc.URI, doc.LanguageID, doc.Version, doc.Text)
}

func (s *server) DidChange(ctx context.Context, params *lsp.DidChangeTextDocumentParams) error {
	if !s.acceptNotification("textDocument/didChange") {
		return nil
	}
	uri := params.TextDocument.URI
	ctx, done := debug.Start(ctx, "textdocument.didChange", slog.String("uri", string(uri)))
	defer done()
	return s.store.ApplyChange(ctx, uri, params.TextDocument.Version, document.ChangesFromLSP(params.ContentChanges))
}

func (s *server) DidClose(ctx context.Context, params *lsp.DidCloseTextDocumentParams) error {
	if !s.acceptNotification("textDocument/didClose") {
		return nil
	}
	uri := params.TextDocument.URI
	ctx, done := debug.Start(ctx, "textdocument.didClose", slog.String("uri", string(uri)))
	defer done()
	return s.store.Close(ctx, uri)
}
