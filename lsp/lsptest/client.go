// Package lsptest provides an in-memory lsp.Client for tests.
package lsptest

import (
	"context"
	"sync"

	"github.com/corymhall/textlsp/lsp"
)

// Client records every message the server sends to the editor.
type Client struct {
	mu          sync.Mutex
	diagnostics []lsp.PublishDiagnosticsParams
	progress    []any
	created     []lsp.ProgressToken
	shown       []lsp.ShowMessageParams
	logged      []lsp.LogMessageParams

	// CreateErr is returned from WorkDoneProgressCreate when set.
	CreateErr error
}

var _ lsp.Client = (*Client)(nil)

func (c *Client) PublishDiagnostics(_ context.Context, params *lsp.PublishDiagnosticsParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, *params)
	return nil
}

func (c *Client) WorkDoneProgressCreate(_ context.Context, params *lsp.WorkDoneProgressCreateParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return c.CreateErr
	}
	c.created = append(c.created, params.Token)
	return nil
}

func (c *Client) ProgressBegin(_ context.Context, params *lsp.WorkDoneProgressBeginParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, *params)
	return nil
}

func (c *Client) ProgressEnd(_ context.Context, params *lsp.WorkDoneProgressEndParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, *params)
	return nil
}

func (c *Client) ShowMessage(_ context.Context, params *lsp.ShowMessageParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, *params)
	return nil
}

func (c *Client) LogMessage(_ context.Context, params *lsp.LogMessageParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logged = append(c.logged, *params)
	return nil
}

// Diagnostics returns every publishDiagnostics notification in send order.
func (c *Client) Diagnostics() []lsp.PublishDiagnosticsParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lsp.PublishDiagnosticsParams(nil), c.diagnostics...)
}

// LastDiagnostics returns the most recent diagnostics published for uri and
// whether any were published at all.
func (c *Client) LastDiagnostics(uri lsp.DocumentURI) ([]lsp.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.diagnostics) - 1; i >= 0; i-- {
		if c.diagnostics[i].URI == uri {
			return c.diagnostics[i].Diagnostics, true
		}
	}
	return nil, false
}

// Progress returns the $/progress payloads (begin and end params) in order.
func (c *Client) Progress() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.progress...)
}

// CreatedTokens returns the tokens passed to window/workDoneProgress/create.
func (c *Client) CreatedTokens() []lsp.ProgressToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lsp.ProgressToken(nil), c.created...)
}

// Shown returns the window/showMessage payloads.
func (c *Client) Shown() []lsp.ShowMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lsp.ShowMessageParams(nil), c.shown...)
}

// Logged returns the window/logMessage payloads.
func (c *Client) Logged() []lsp.LogMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lsp.LogMessageParams(nil), c.logged...)
}
