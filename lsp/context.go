package lsp

import (
	"context"
)

type contextKey int

const (
	clientKey = contextKey(iota)
)

// WithClient returns a context carrying client, so that code far from the
// server (e.g. log handlers) can talk to the editor.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// GetClient returns the client stored by WithClient, or nil.
func GetClient(ctx context.Context) Client {
	client, ok := ctx.Value(clientKey).(Client)
	if !ok {
		return nil
	}
	return client
}
