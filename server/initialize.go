package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/rpc"
	"github.com/corymhall/textlsp/workspace"
)

func (s *server) Initialize(ctx context.Context, params *lsp.InitializeRequestParams) (*lsp.InitializeResult, error) {
	s.stateMu.Lock()
	if s.state >= serverInitializing {
		defer s.stateMu.Unlock()
		return nil, fmt.Errorf("%w: initialize called while server in %v state", rpc.ErrInvalidRequest, s.state)
	}
	s.state = serverInitializing
	s.stateMu.Unlock()

	s.progress.SetSupportsWorkDoneProgress(params.Capabilities.Window.WorkDoneProgress)
	if params.ClientInfo != nil {
		s.logger.Info("client connected",
			slog.String("name", params.ClientInfo.Name),
			slog.String("version", params.ClientInfo.Version))
	}

	// A client without a usable root still gets a working server; workspace
	// queries answer null.
	if uri := workspace.RootURI(params); uri != "" {
		if err := s.root.SetFromInitialization(uri); err != nil {
			s.logger.Warn("ignoring workspace root", slog.String("uri", string(uri)), slog.Any("error", err))
		}
	}

	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync:   lsp.TextDocumentSyncKindIncremental,
			ReferencesProvider: true,
		},
		ServerInfo: lsp.ServerInfo{
			Name:    serverName,
			Version: s.version,
		},
	}, nil
}

func (s *server) Initialized(ctx context.Context, params *lsp.InitializedParams) error {
	s.stateMu.Lock()
	if s.state != serverInitializing {
		defer s.stateMu.Unlock()
		return fmt.Errorf("%w: initialized called while server in %v state", rpc.ErrInvalidRequest, s.state)
	}
	s.state = serverInitialized
	s.stateMu.Unlock()

	if root, ok := s.root.Path(); ok {
		s.logger.Info("server initialized", slog.String("root", root))
	} else {
		s.logger.Info("server initialized without a workspace root")
	}
	return nil
}
