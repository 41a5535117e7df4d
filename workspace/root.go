// Package workspace tracks the workspace root and answers queries that scan
// the files beneath it.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/corymhall/textlsp/lsp"
)

// ErrRootAlreadySet is returned when the root is set a second time.
var ErrRootAlreadySet = errors.New("workspace root already set")

// Root is the workspace root directory. It is set at most once, during
// initialization, and never changes afterwards.
type Root struct {
	mu   sync.RWMutex
	path string
	set  bool
}

// SetFromInitialization records the directory named by a file:// uri.
func (r *Root) SetFromInitialization(uri lsp.DocumentURI) error {
	path, err := uri.Path()
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("workspace root %q is not an absolute path", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return fmt.Errorf("%w: %s", ErrRootAlreadySet, r.path)
	}
	r.path = filepath.Clean(path)
	r.set = true
	return nil
}

// Path returns the root directory, or false if none was set.
func (r *Root) Path() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path, r.set
}

// RootURI picks the workspace root a client announced during initialization:
// the first workspace folder, or the deprecated rootUri when the client sent
// no folders. It returns "" if neither is present.
func RootURI(params *lsp.InitializeRequestParams) lsp.DocumentURI {
	if len(params.WorkspaceFolders) > 0 {
		return params.WorkspaceFolders[0].URI
	}
	return params.RootURI
}
