package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/corymhall/textlsp/lsp"
	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (with parent directories) under a new temp dir.
func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	}
	return root
}

// relPaths maps locations back to slash separated paths relative to root.
func relPaths(t *testing.T, root string, locs []lsp.Location) []string {
	t.Helper()
	out := []string{}
	for _, loc := range locs {
		assert.Equal(t, lsp.Range{}, loc.Range)
		path, err := loc.URI.Path()
		require.NoError(t, err)
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestRoot(t *testing.T) {
	var r Root
	_, ok := r.Path()
	assert.False(t, ok)

	require.NoError(t, r.SetFromInitialization("file:///home/user/ws"))
	path, ok := r.Path()
	require.True(t, ok)
	assert.Equal(t, "/home/user/ws", path)

	err := r.SetFromInitialization("file:///elsewhere")
	require.ErrorIs(t, err, ErrRootAlreadySet)
	path, _ = r.Path()
	assert.Equal(t, "/home/user/ws", path, "the root is write-once")
}

func TestRootRejectsNonFileURI(t *testing.T) {
	var r Root
	require.ErrorContains(t, r.SetFromInitialization("untitled:Untitled-1"), "only file URIs are supported")
	_, ok := r.Path()
	assert.False(t, ok)
}

func TestRootURI(t *testing.T) {
	assert.Equal(t, lsp.DocumentURI("file:///a"), RootURI(&lsp.InitializeRequestParams{
		RootURI: "file:///legacy",
		WorkspaceFolders: []lsp.WorkspaceFolder{
			{URI: "file:///a", Name: "a"},
			{URI: "file:///b", Name: "b"},
		},
	}))
	assert.Equal(t, lsp.DocumentURI("file:///legacy"), RootURI(&lsp.InitializeRequestParams{RootURI: "file:///legacy"}))
	assert.Equal(t, lsp.DocumentURI(""), RootURI(&lsp.InitializeRequestParams{}))
}

func TestFindReferences(t *testing.T) {
	root := writeTree(t, "a.txt", "b/b.txt", "b/c.log", "b/d/e.txt", "notes.md")
	locs, err := NewResolver().FindReferences(context.Background(), root, ReferenceQuery{URI: lsp.URIFromPath(filepath.Join(root, "a.txt"))})
	require.NoError(t, err)
	autogold.Expect([]string{"a.txt", "b/b.txt", "b/d/e.txt"}).Equal(t, relPaths(t, root, locs))
}

func TestFindReferencesNoRoot(t *testing.T) {
	called := false
	r := NewResolver(WithReadDir(func(string) ([]fs.DirEntry, error) {
		called = true
		return nil, nil
	}))
	locs, err := r.FindReferences(context.Background(), "", ReferenceQuery{})
	require.NoError(t, err)
	assert.Nil(t, locs)
	assert.False(t, called, "no file system access without a root")
}

func TestFindReferencesEmpty(t *testing.T) {
	root := writeTree(t, "only.log", "sub/other.md")
	locs, err := NewResolver().FindReferences(context.Background(), root, ReferenceQuery{})
	require.NoError(t, err)
	require.NotNil(t, locs, "no matches is an empty list, not null")
	assert.Empty(t, locs)
}

func TestFindReferencesDirectoryReadError(t *testing.T) {
	root := writeTree(t, "a.txt", "b/b.txt", "c/c.txt")
	denied := errors.New("permission denied")
	r := NewResolver(WithReadDir(func(name string) ([]fs.DirEntry, error) {
		if name == filepath.Join(root, "b") {
			return nil, denied
		}
		return os.ReadDir(name)
	}))

	locs, err := r.FindReferences(context.Background(), root, ReferenceQuery{})
	assert.Nil(t, locs, "no partial results")
	var dirErr *DirectoryReadError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, filepath.Join(root, "b"), dirErr.Path)
	require.ErrorIs(t, err, denied)
	assert.ErrorContains(t, err, filepath.Join(root, "b"))
}

func TestFindReferencesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	_, err := NewResolver().FindReferences(context.Background(), root, ReferenceQuery{})
	var dirErr *DirectoryReadError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, root, dirErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFindReferencesUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := writeTree(t, "a.txt", "locked/x.txt")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	_, err := NewResolver().FindReferences(context.Background(), root, ReferenceQuery{})
	var dirErr *DirectoryReadError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, locked, dirErr.Path)
}

func TestFindReferencesDoesNotFollowDirectoryLinks(t *testing.T) {
	root := writeTree(t, "a.txt", "sub/b.txt")
	// a cycle back to the root
	if err := os.Symlink(root, filepath.Join(root, "sub", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	locs, err := NewResolver().FindReferences(context.Background(), root, ReferenceQuery{})
	require.NoError(t, err)
	autogold.Expect([]string{"a.txt", "sub/b.txt"}).Equal(t, relPaths(t, root, locs))
}

func TestFindReferencesCustomMatcher(t *testing.T) {
	root := writeTree(t, "a.txt", "b.md", "c/d.md")
	r := NewResolver(WithMatcher(ExtensionMatcher("md")))
	locs, err := r.FindReferences(context.Background(), root, ReferenceQuery{})
	require.NoError(t, err)
	autogold.Expect([]string{"b.md", "c/d.md"}).Equal(t, relPaths(t, root, locs))
}

func TestFindReferencesCancelled(t *testing.T) {
	root := writeTree(t, "a.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver().FindReferences(ctx, root, ReferenceQuery{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtensionMatcher(t *testing.T) {
	m := ExtensionMatcher(".txt")
	assert.True(t, m("/ws/a.txt"))
	assert.False(t, m("/ws/a.txt.bak"))
	assert.False(t, m("/ws/a.TXT"))
	assert.False(t, m("/ws/txt"))
}

func TestQueryFromParams(t *testing.T) {
	params := &lsp.ReferenceParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: "file:///ws/a.txt"},
			Position:     lsp.Position{Line: 3, Character: 4},
		},
		Context: lsp.ReferenceContext{IncludeDeclaration: true},
	}
	autogold.Expect(ReferenceQuery{
		URI: lsp.DocumentURI("file:///ws/a.txt"),
		Position: lsp.Position{
			Line:      3,
			Character: 4,
		},
		IncludeDeclaration: true,
	}).Equal(t, QueryFromParams(params))
}
