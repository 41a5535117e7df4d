package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/corymhall/textlsp/rpc"
	"go.lsp.dev/uri"
)

type DocumentURI string

type LanguageKind string

// Path returns the file system path of a file:// URI.
func (u DocumentURI) Path() (string, error) {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return "", fmt.Errorf("parsing uri %q: %w", u, err)
	}
	if parsed.Scheme != uri.FileScheme {
		return "", fmt.Errorf("uri %q: only file URIs are supported, got scheme %q", u, parsed.Scheme)
	}
	return uri.URI(u).Filename(), nil
}

// URIFromPath returns the file:// URI for an absolute path.
func URIFromPath(path string) DocumentURI {
	if path == "" {
		return ""
	}
	return DocumentURI(uri.File(path))
}

type Server interface {
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#exit
	Exit(context.Context) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#initialize
	Initialize(context.Context, *InitializeRequestParams) (*InitializeResult, error)
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#initialized
	Initialized(context.Context, *InitializedParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#shutdown
	Shutdown(context.Context) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#textDocument_didOpen
	DidOpen(context.Context, *DidOpenTextDocumentParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#textDocument_didChange
	DidChange(context.Context, *DidChangeTextDocumentParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#textDocument_didClose
	DidClose(context.Context, *DidCloseTextDocumentParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#textDocument_references
	// A nil slice means "no result" and is sent as null.
	References(context.Context, *ReferenceParams) ([]Location, error)
	Logger() *slog.Logger
}

func serverDispatch(ctx context.Context, server Server, reply rpc.Replier, r rpc.Request) (bool, error) {
	logger := server.Logger()
	switch r.Method() {
	case "exit":
		err := server.Exit(ctx)
		return true, reply(ctx, nil, err)
	case "shutdown":
		err := server.Shutdown(ctx)
		return true, reply(ctx, nil, err)
	case "initialize":
		logger.Debug("received initialize request", slog.String("params", string(r.Params())))
		var params InitializeRequestParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		resp, err := server.Initialize(ctx, &params)
		if err != nil {
			logger.Error("initialize failed", slog.Any("error", err))
			return true, reply(ctx, nil, err)
		}
		return true, reply(ctx, resp, nil)
	case "initialized":
		var params InitializedParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		err := server.Initialized(ctx, &params)
		return true, replyOrReport(ctx, server, reply, r, err)
	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		err := server.DidOpen(ctx, &params)
		return true, replyOrReport(ctx, server, reply, r, err)
	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		err := server.DidChange(ctx, &params)
		return true, replyOrReport(ctx, server, reply, r, err)
	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		err := server.DidClose(ctx, &params)
		return true, replyOrReport(ctx, server, reply, r, err)
	case "textDocument/references":
		var params ReferenceParams
		if err := UnmarshalJSON(r.Params(), &params); err != nil {
			return true, sendParseError(ctx, server, reply, r, err)
		}
		resp, err := server.References(ctx, &params)
		if err != nil {
			logger.Error("references failed", slog.Any("error", err))
			return true, reply(ctx, nil, err)
		}
		return true, reply(ctx, resp, nil)
	default:
		return false, nil
	}
}

// replyOrReport replies to calls as usual. Notifications have nobody to
// reply to, so a failure is logged and shown to the user instead.
func replyOrReport(ctx context.Context, server Server, reply rpc.Replier, r rpc.Request, err error) error {
	if _, isCall := r.(*rpc.Call); isCall || err == nil {
		return reply(ctx, nil, err)
	}
	server.Logger().Error("notification failed", slog.String("method", r.Method()), slog.Any("error", err))
	if client := GetClient(ctx); client != nil {
		if showErr := client.ShowMessage(ctx, &ShowMessageParams{
			Type:    MessageTypeError,
			Message: fmt.Sprintf("%s: %v", r.Method(), err),
		}); showErr != nil {
			return showErr
		}
	}
	return reply(ctx, nil, nil)
}

func sendParseError(ctx context.Context, server Server, reply rpc.Replier, r rpc.Request, err error) error {
	return replyOrReport(ctx, server, reply, r, fmt.Errorf("%w: %s", rpc.ErrInvalidParams, err))
}
