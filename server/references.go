package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/workspace"
)

func (s *server) References(ctx context.Context, params *lsp.ReferenceParams) ([]lsp.Location, error) {
	if err := s.checkNotShutDown("textDocument/references"); err != nil {
		return nil, err
	}
	ctx, done := debug.Start(ctx, "textdocument.references", slog.String("uri", string(params.TextDocument.URI)))
	defer done()

	root, ok := s.root.Path()
	if !ok {
		return nil, nil
	}

	work := s.progress.Start(ctx, serverName, "Scanning workspace...", params.WorkDoneToken)
	locations, err := s.resolver.FindReferences(ctx, root, workspace.QueryFromParams(params))
	if err != nil {
		work.End(ctx, "Failed.")
		var dirErr *workspace.DirectoryReadError
		switch {
		case errors.As(err, &dirErr):
			return nil, fmt.Errorf("%w: %w", lsp.ErrRequestFailed, err)
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: %w", lsp.ErrRequestCancelled, err)
		}
		return nil, err
	}
	work.End(ctx, fmt.Sprintf("Found %d files.", len(locations)))
	return locations, nil
}
