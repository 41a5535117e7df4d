package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/corymhall/textlsp/analysis"
	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/document"
	"github.com/corymhall/textlsp/lsp"
)

// fileDiagnostics holds the last diagnostics published for a file.
type fileDiagnostics struct {
	version     *int32 // nil once the file was closed
	diagnostics []lsp.Diagnostic
}

// publisher runs the analyzer on every document change and pushes the
// result to the client. Each publication fully replaces the previous set.
type publisher struct {
	client   lsp.Client
	analyzer analysis.Analyzer
	logger   *slog.Logger

	mu        sync.Mutex // guards map and its values
	published map[lsp.DocumentURI]*fileDiagnostics
}

func newPublisher(client lsp.Client, analyzer analysis.Analyzer, logger *slog.Logger) *publisher {
	return &publisher{
		client:    client,
		analyzer:  analyzer,
		logger:    logger,
		published: make(map[lsp.DocumentURI]*fileDiagnostics),
	}
}

// handle is subscribed to the document store.
func (p *publisher) handle(ctx context.Context, ev document.Event) {
	uri := ev.Document.URI()
	ctx, done := debug.Start(ctx, "diagnostics.publish",
		slog.String("uri", string(uri)),
		slog.String("action", ev.Action.String()))
	defer done()

	switch ev.Action {
	case document.Opened, document.Changed:
		p.publish(ctx, uri, p.analyze(ctx, ev.Document))
	case document.Closed:
		p.publish(ctx, uri, &fileDiagnostics{diagnostics: []lsp.Diagnostic{}})
	}
}

// analyze runs the analyzer on doc. A failing analyzer yields an empty set.
func (p *publisher) analyze(ctx context.Context, doc document.Handle) *fileDiagnostics {
	diags, err := analysis.Run(ctx, p.analyzer, doc.Text())
	if err != nil {
		// a broken analyzer must not take the document down with it
		p.logger.Error("analyzer failed", slog.String("uri", string(doc.URI())), slog.Any("error", err))
	}
	version := doc.Version()
	return &fileDiagnostics{version: &version, diagnostics: diags}
}

func (p *publisher) publish(ctx context.Context, uri lsp.DocumentURI, f *fileDiagnostics) {
	p.mu.Lock()
	p.published[uri] = f
	p.mu.Unlock()

	if err := p.client.PublishDiagnostics(ctx, &lsp.PublishDiagnosticsParams{
		URI:         uri,
		Version:     f.version,
		Diagnostics: f.diagnostics,
	}); err != nil {
		p.logger.Error("error publishing diagnostics", slog.String("uri", string(uri)), slog.Any("error", err))
	}
}

// lastPublished returns the diagnostics most recently published for uri.
func (p *publisher) lastPublished(uri lsp.DocumentURI) ([]lsp.Diagnostic, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.published[uri]
	if !ok {
		return nil, false
	}
	return f.diagnostics, true
}
