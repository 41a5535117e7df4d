package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/lsp"
)

// DefaultExtension is the file extension matched when none is configured.
const DefaultExtension = ".txt"

// ReferenceQuery is a find-references request. The position is carried
// through but matchers that only look at paths ignore it.
type ReferenceQuery struct {
	URI                lsp.DocumentURI
	Position           lsp.Position
	IncludeDeclaration bool
}

// QueryFromParams converts the wire form of a references request.
func QueryFromParams(params *lsp.ReferenceParams) ReferenceQuery {
	return ReferenceQuery{
		URI:                params.TextDocument.URI,
		Position:           params.Position,
		IncludeDeclaration: params.Context.IncludeDeclaration,
	}
}

// Matcher reports whether the file at path is a reference candidate.
type Matcher func(path string) bool

// ExtensionMatcher matches files whose extension equals ext. The leading dot
// is optional.
func ExtensionMatcher(ext string) Matcher {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return func(path string) bool {
		return filepath.Ext(path) == ext
	}
}

// DirectoryReadError is returned when a directory under the root could not be
// listed. The whole query fails; no partial results are returned.
type DirectoryReadError struct {
	Path string
	Err  error
}

func (e *DirectoryReadError) Error() string {
	return fmt.Sprintf("reading directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryReadError) Unwrap() error { return e.Err }

// Resolver answers reference queries by scanning the workspace tree.
type Resolver struct {
	match   Matcher
	readDir func(name string) ([]fs.DirEntry, error)
}

type ResolverOption func(*Resolver)

// WithMatcher replaces the default extension matcher.
func WithMatcher(m Matcher) ResolverOption {
	return func(r *Resolver) { r.match = m }
}

// WithReadDir replaces os.ReadDir for listing directories.
func WithReadDir(readDir func(name string) ([]fs.DirEntry, error)) ResolverOption {
	return func(r *Resolver) { r.readDir = readDir }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		match:   ExtensionMatcher(DefaultExtension),
		readDir: os.ReadDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindReferences returns a Location at the start of every matching file under
// root. An empty root means the workspace is unknown and yields a nil slice,
// which is sent to the client as null. A readable root without matches yields
// an empty, non-nil slice.
//
// Entries are classified without following symbolic links, so a link to a
// directory is never descended into and the walk always terminates.
func (r *Resolver) FindReferences(ctx context.Context, root string, q ReferenceQuery) ([]lsp.Location, error) {
	if root == "" {
		debug.Debug.Log(ctx, "no workspace root, skipping reference scan")
		return nil, nil
	}
	ctx, done := debug.Start(ctx, "FindReferences", slog.String("root", root), slog.String("uri", string(q.URI)))
	defer done()

	locations := []lsp.Location{}
	if err := r.walk(ctx, root, &locations); err != nil {
		return nil, err
	}
	debug.Debug.Log(ctx, "reference scan complete", slog.Int("matches", len(locations)))
	return locations, nil
}

// walk visits dir depth first, in directory listing order.
func (r *Resolver) walk(ctx context.Context, dir string, out *[]lsp.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := r.readDir(dir)
	if err != nil {
		return &DirectoryReadError{Path: dir, Err: err}
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := r.walk(ctx, path, out); err != nil {
				return err
			}
			continue
		}
		if r.match(path) {
			*out = append(*out, lsp.Location{URI: lsp.URIFromPath(path)})
		}
	}
	return nil
}
