// Package analysis computes diagnostics for document text.
package analysis

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/corymhall/textlsp/lsp"
)

// Source is reported as the origin of diagnostics produced here.
const Source = "textlsp"

// Analyzer computes the full diagnostic set for a document's text. It must
// not retain text. Its diagnostics are published exactly as returned.
type Analyzer func(ctx context.Context, text string) ([]lsp.Diagnostic, error)

// Placeholder reports a single fixed error on the first character of every
// document, whatever its content.
func Placeholder(context.Context, string) ([]lsp.Diagnostic, error) {
	return []lsp.Diagnostic{
		{
			Range: lsp.Range{
				Start: lsp.Position{Line: 0, Character: 0},
				End:   lsp.Position{Line: 0, Character: 1},
			},
			Severity: lsp.SeverityError,
			Source:   Source,
			Message:  "Diagnostic error",
		},
	}, nil
}

// Run calls a and converts a panic into an error. A nil result is returned
// as an empty, non-nil slice so that it is sent as [] rather than null.
func Run(ctx context.Context, a Analyzer, text string) (diags []lsp.Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			diags = nil
			err = fmt.Errorf("analyzer panicked: %v\n%s", r, debug.Stack())
		}
		if diags == nil {
			diags = []lsp.Diagnostic{}
		}
	}()
	diags, err = a(ctx, text)
	if err != nil {
		return nil, err
	}
	return diags, nil
}
