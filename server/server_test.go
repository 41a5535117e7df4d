package server

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/lsp/lsptest"
	"github.com/corymhall/textlsp/rpc"
	"github.com/corymhall/textlsp/workspace"
	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docURI = lsp.DocumentURI("file:///ws/a.txt")

type testServer struct {
	*server
	client   *lsptest.Client
	exitCode *int
}

func newTestServer(t *testing.T, opts ...Option) testServer {
	t.Helper()
	client := &lsptest.Client{}
	code := -1
	opts = append([]Option{WithExit(func(c int) { code = c })}, opts...)
	s, ok := New(nil, client, opts...).(*server)
	require.True(t, ok)
	return testServer{server: s, client: client, exitCode: &code}
}

// initialize runs the handshake with the given root (none if empty).
func (ts testServer) initialize(t *testing.T, root string, workDoneProgress bool) {
	t.Helper()
	ctx := context.Background()
	params := &lsp.InitializeRequestParams{}
	params.Capabilities.Window.WorkDoneProgress = workDoneProgress
	if root != "" {
		params.WorkspaceFolders = []lsp.WorkspaceFolder{{URI: lsp.URIFromPath(root), Name: "ws"}}
	}
	_, err := ts.Initialize(ctx, params)
	require.NoError(t, err)
	require.NoError(t, ts.Initialized(ctx, &lsp.InitializedParams{}))
}

func (ts testServer) open(t *testing.T, uri lsp.DocumentURI, version int32, text string) {
	t.Helper()
	require.NoError(t, ts.DidOpen(context.Background(), &lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: uri, LanguageID: "plaintext", Version: version, Text: text},
	}))
}

func (ts testServer) change(t *testing.T, uri lsp.DocumentURI, version int32, changes ...lsp.TextDocumentContentChangeEvent) error {
	t.Helper()
	return ts.DidChange(context.Background(), &lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: changes,
	})
}

func (ts testServer) close(uri lsp.DocumentURI) error {
	return ts.DidClose(context.Background(), &lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	})
}

func (ts testServer) references(uri lsp.DocumentURI) ([]lsp.Location, error) {
	return ts.References(context.Background(), &lsp.ReferenceParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		},
	})
}

func rpcCode(t *testing.T, err error) int64 {
	t.Helper()
	var rpcErr *rpc.Error
	require.True(t, errors.As(err, &rpcErr), "expected an rpc error, got %v", err)
	return rpcErr.Code
}

func TestInitialize(t *testing.T) {
	ts := newTestServer(t, WithVersion("1.2.3"))
	result, err := ts.Initialize(context.Background(), &lsp.InitializeRequestParams{
		ClientInfo: &lsp.ClientInfo{Name: "test"},
	})
	require.NoError(t, err)
	autogold.Expect(&lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync:   lsp.TextDocumentSyncKind(2),
			ReferencesProvider: true,
		},
		ServerInfo: lsp.ServerInfo{Name: "textlsp", Version: "1.2.3"},
	}).Equal(t, result)

	_, err = ts.Initialize(context.Background(), &lsp.InitializeRequestParams{})
	assert.Equal(t, rpc.CodeInvalidRequest, rpcCode(t, err))
}

func TestRootFromInitialize(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.Initialize(context.Background(), &lsp.InitializeRequestParams{RootURI: "file:///legacy/root"})
	require.NoError(t, err)
	root, ok := ts.root.Path()
	require.True(t, ok)
	assert.Equal(t, "/legacy/root", root)

	// a root the server cannot use is ignored, not fatal
	ts = newTestServer(t)
	_, err = ts.Initialize(context.Background(), &lsp.InitializeRequestParams{RootURI: "https://example.com/ws"})
	require.NoError(t, err)
	_, ok = ts.root.Path()
	assert.False(t, ok)
}

func TestBeforeInitialize(t *testing.T) {
	ts := newTestServer(t)

	// no root yet: references are unavailable, not an error
	locs, err := ts.references(docURI)
	require.NoError(t, err)
	assert.Nil(t, locs)
	assert.ErrorIs(t, ts.Shutdown(context.Background()), lsp.ErrServerNotInitialized)

	// documents are tracked and diagnosed
	ts.open(t, docURI, 1, "text")
	last, ok := ts.client.LastDiagnostics(docURI)
	require.True(t, ok)
	assert.Len(t, last, 1)
	_, open := ts.store.Get(docURI)
	assert.True(t, open)

	require.Error(t, ts.Initialized(context.Background(), &lsp.InitializedParams{}))
}

func TestDocumentLifecycleDiagnostics(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "", false)

	ts.open(t, docURI, 1, "hello")
	require.NoError(t, ts.change(t, docURI, 2, lsp.TextDocumentContentChangeEvent{Text: "hello again"}))
	require.NoError(t, ts.close(docURI))

	v1, v2 := int32(1), int32(2)
	placeholder := []lsp.Diagnostic{{
		Range:    lsp.Range{End: lsp.Position{Character: 1}},
		Severity: lsp.SeverityError,
		Source:   "textlsp",
		Message:  "Diagnostic error",
	}}
	assert.Equal(t, []lsp.PublishDiagnosticsParams{
		{URI: docURI, Version: &v1, Diagnostics: placeholder},
		{URI: docURI, Version: &v2, Diagnostics: placeholder},
		{URI: docURI, Diagnostics: []lsp.Diagnostic{}},
	}, ts.client.Diagnostics())

	last, ok := ts.diagnostics.lastPublished(docURI)
	require.True(t, ok)
	assert.Empty(t, last)
	_, open := ts.store.Get(docURI)
	assert.False(t, open)
}

func TestDiagnosticsReplacePreviousSet(t *testing.T) {
	// one diagnostic per line
	perLine := func(_ context.Context, text string) ([]lsp.Diagnostic, error) {
		var diags []lsp.Diagnostic
		for i, line := range strings.Split(text, "\n") {
			diags = append(diags, lsp.Diagnostic{
				Range:   lsp.Range{Start: lsp.Position{Line: int32(i)}, End: lsp.Position{Line: int32(i), Character: int32(len(line))}},
				Message: "  " + line + "  ",
			})
		}
		return diags, nil
	}
	ts := newTestServer(t, WithAnalyzer(perLine))
	ts.initialize(t, "", false)

	ts.open(t, docURI, 1, "one\ntwo\nthree")
	last, _ := ts.client.LastDiagnostics(docURI)
	assert.Len(t, last, 3)

	require.NoError(t, ts.change(t, docURI, 2, lsp.TextDocumentContentChangeEvent{
		Range: &lsp.Range{Start: lsp.Position{Line: 0, Character: 3}, End: lsp.Position{Line: 2, Character: 5}},
		Text:  "",
	}))
	last, _ = ts.client.LastDiagnostics(docURI)
	autogold.Expect([]lsp.Diagnostic{{
		Range:   lsp.Range{End: lsp.Position{Character: 3}},
		Message: "  one  ",
	}}).Equal(t, last)
}

func TestAnalyzerFailureYieldsEmptySet(t *testing.T) {
	failing := func(context.Context, string) ([]lsp.Diagnostic, error) {
		return nil, errors.New("analyzer exploded")
	}
	ts := newTestServer(t, WithAnalyzer(failing))
	ts.initialize(t, "", false)

	ts.open(t, docURI, 1, "text")
	last, ok := ts.client.LastDiagnostics(docURI)
	require.True(t, ok)
	assert.NotNil(t, last)
	assert.Empty(t, last)

	panicking := func(context.Context, string) ([]lsp.Diagnostic, error) { panic("boom") }
	ts = newTestServer(t, WithAnalyzer(panicking))
	ts.initialize(t, "", false)
	ts.open(t, docURI, 1, "text")
	last, ok = ts.client.LastDiagnostics(docURI)
	require.True(t, ok)
	assert.Empty(t, last)
}

func TestDocumentErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "", false)

	require.Error(t, ts.change(t, docURI, 1, lsp.TextDocumentContentChangeEvent{Text: "x"}))
	require.Error(t, ts.close(docURI))

	ts.open(t, docURI, 1, "text")
	err := ts.DidOpen(context.Background(), &lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: docURI, Version: 2, Text: "again"},
	})
	require.ErrorContains(t, err, "document already open")
	assert.Len(t, ts.client.Diagnostics(), 1, "failed operations publish nothing")
}

func writeWorkspace(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	return root
}

func TestReferences(t *testing.T) {
	root := writeWorkspace(t, "a.txt", "b/b.txt", "b/c.log")
	ts := newTestServer(t)
	ts.initialize(t, root, false)

	locs, err := ts.references(lsp.URIFromPath(filepath.Join(root, "a.txt")))
	require.NoError(t, err)
	assert.Equal(t, []lsp.Location{
		{URI: lsp.URIFromPath(filepath.Join(root, "a.txt"))},
		{URI: lsp.URIFromPath(filepath.Join(root, "b", "b.txt"))},
	}, locs)
	assert.Empty(t, ts.client.Progress(), "no progress without client support")
}

func TestReferencesWithoutRoot(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "", true)
	locs, err := ts.references(docURI)
	require.NoError(t, err)
	assert.Nil(t, locs)
	assert.Empty(t, ts.client.Progress())
}

func TestReferencesEmptyWorkspace(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, writeWorkspace(t, "notes.md"), false)
	locs, err := ts.references(docURI)
	require.NoError(t, err)
	assert.NotNil(t, locs)
	assert.Empty(t, locs)
}

func TestReferencesDirectoryReadError(t *testing.T) {
	root := writeWorkspace(t, "a.txt", "b/b.txt")
	ts := newTestServer(t, WithResolverOptions(workspace.WithReadDir(func(name string) ([]fs.DirEntry, error) {
		if filepath.Base(name) == "b" {
			return nil, fs.ErrPermission
		}
		return os.ReadDir(name)
	})))
	ts.initialize(t, root, true)

	locs, err := ts.references(docURI)
	assert.Nil(t, locs)
	assert.Equal(t, int64(-32803), rpcCode(t, err))
	assert.ErrorContains(t, err, filepath.Join(root, "b"))

	// progress still ends
	require.Len(t, ts.client.Progress(), 2)
	assert.Equal(t, 0, ts.progress.Active())
}

func TestReferencesProgress(t *testing.T) {
	root := writeWorkspace(t, "a.txt")
	ts := newTestServer(t)
	ts.initialize(t, root, true)

	_, err := ts.references(docURI)
	require.NoError(t, err)

	tokens := ts.client.CreatedTokens()
	require.Len(t, tokens, 1)
	progress := ts.client.Progress()
	require.Len(t, progress, 2)
	begin, ok := progress[0].(lsp.WorkDoneProgressBeginParams)
	require.True(t, ok)
	assert.Equal(t, tokens[0], begin.Token)
	assert.Equal(t, "Scanning workspace...", begin.Value.Message)
	end, ok := progress[1].(lsp.WorkDoneProgressEndParams)
	require.True(t, ok)
	assert.Equal(t, tokens[0], end.Token)
	assert.Equal(t, "Found 1 files.", end.Value.Message)
	assert.Equal(t, 0, ts.progress.Active())
}

func TestReferencesProgressClientToken(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, writeWorkspace(t, "a.txt"), true)

	_, err := ts.References(context.Background(), &lsp.ReferenceParams{
		WorkDoneProgressParams: lsp.WorkDoneProgressParams{WorkDoneToken: "client-token"},
	})
	require.NoError(t, err)
	assert.Empty(t, ts.client.CreatedTokens(), "a client supplied token is used as is")
	progress := ts.client.Progress()
	require.Len(t, progress, 2)
	assert.Equal(t, lsp.ProgressToken("client-token"), progress[0].(lsp.WorkDoneProgressBeginParams).Token)
}

func TestReferencesProgressCreateFails(t *testing.T) {
	ts := newTestServer(t)
	ts.client.CreateErr = errors.New("no progress for you")
	ts.initialize(t, writeWorkspace(t, "a.txt"), true)

	locs, err := ts.references(docURI)
	require.NoError(t, err)
	assert.Len(t, locs, 1)
	assert.Empty(t, ts.client.Progress())
}

func TestShutdownExit(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, writeWorkspace(t, "a.txt"), false)
	ctx := context.Background()

	require.NoError(t, ts.Shutdown(ctx))
	require.NoError(t, ts.Shutdown(ctx), "shutdown is idempotent")
	_, err := ts.references(docURI)
	assert.Equal(t, rpc.CodeInvalidRequest, rpcCode(t, err))

	// notifications after shutdown are dropped
	ts.open(t, docURI, 1, "text")
	assert.Empty(t, ts.client.Diagnostics())
	_, open := ts.store.Get(docURI)
	assert.False(t, open)

	require.NoError(t, ts.Exit(ctx))
	assert.Equal(t, 0, *ts.exitCode)

	ts = newTestServer(t)
	ts.initialize(t, "", false)
	require.NoError(t, ts.Exit(ctx))
	assert.Equal(t, 1, *ts.exitCode, "exit without shutdown is an error")
}

func TestHandlerPanicRepliesInternalError(t *testing.T) {
	ts := newTestServer(t, WithResolverOptions(workspace.WithReadDir(func(string) ([]fs.DirEntry, error) {
		panic("disk on fire")
	})))
	ts.initialize(t, writeWorkspace(t, "a.txt"), false)

	call, err := rpc.NewCall(rpc.NewNumberID(1), "textDocument/references", &lsp.ReferenceParams{})
	require.NoError(t, err)
	var replies []error
	handler := lsp.ServerHandler(ts.server, rpc.MethodNotFound)
	require.NoError(t, handler(context.Background(), func(_ context.Context, _ any, err error) error {
		replies = append(replies, err)
		return nil
	}, call))

	require.Len(t, replies, 1)
	assert.Equal(t, rpc.CodeInternal, rpcCode(t, replies[0]))
	assert.ErrorContains(t, replies[0], "disk on fire")
}

func TestAnalyzerOutputIsPublishedUnchanged(t *testing.T) {
	padded := func(context.Context, string) ([]lsp.Diagnostic, error) {
		return []lsp.Diagnostic{{Message: "  keep my spacing \n"}}, nil
	}
	ts := newTestServer(t, WithAnalyzer(padded))
	ts.open(t, docURI, 1, "text")
	last, ok := ts.client.LastDiagnostics(docURI)
	require.True(t, ok)
	assert.Equal(t, "  keep my spacing \n", last[0].Message)
}
