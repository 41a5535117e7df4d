package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a JSON-RPC error object. Handlers usually wrap one of the
// predefined errors below with %w; the connection reports the code of the
// first *Error found in the chain, and the full error text as the message.
type Error struct {
	// Code is the JSON-RPC error code.
	Code int64 `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data holds optional additional information about the error.
	Data *json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewError builds an Error with the supplied code and message.
func NewError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

const (
	// CodeParse is used when invalid JSON was received by the server.
	CodeParse int64 = -32700
	// CodeInvalidRequest is used when the JSON sent is not a valid Request object.
	CodeInvalidRequest int64 = -32600
	// CodeMethodNotFound should be returned by the handler when the method does
	// not exist / is not available.
	CodeMethodNotFound int64 = -32601
	// CodeInvalidParams should be returned by the handler when method
	// parameter(s) were invalid.
	CodeInvalidParams int64 = -32602
	// CodeInternal is used for errors that carry no code of their own.
	CodeInternal int64 = -32603
)

var (
	ErrParse          = NewError(CodeParse, "JSON RPC parse error")
	ErrInvalidRequest = NewError(CodeInvalidRequest, "JSON RPC invalid request")
	ErrMethodNotFound = NewError(CodeMethodNotFound, "JSON RPC method not found")
	ErrInvalidParams  = NewError(CodeInvalidParams, "JSON RPC invalid params")
	// ErrInternal is reported for handler failures, including panics.
	ErrInternal = NewError(CodeInternal, "JSON RPC internal error")

	// ErrClosed is returned by Call when the connection stops before a
	// response arrives.
	ErrClosed = errors.New("rpc: connection closed")
)

// toWireError converts an arbitrary handler error into the error object sent
// over the wire.
func toWireError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return &Error{Code: rpcErr.Code, Message: err.Error(), Data: rpcErr.Data}
	}
	return &Error{Code: ErrInternal.Code, Message: err.Error()}
}

// parseError marks a failure to decode a message body; the stream itself is
// still usable afterwards.
func parseError(err error) error {
	return fmt.Errorf("%w: %w", ErrParse, err)
}
