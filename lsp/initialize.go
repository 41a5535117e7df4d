package lsp

type InitializeRequestParams struct {
	WorkDoneProgressParams
	ProcessID  *int32      `json:"processId"`
	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`
	// Deprecated in favour of WorkspaceFolders, but still sent by some clients.
	RootURI          DocumentURI        `json:"rootUri,omitempty"`
	Capabilities     ClientCapabilities `json:"capabilities"`
	WorkspaceFolders []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	// ... there's tons more that goes here
}

type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

type InitializedParams struct{}

type ClientCapabilities struct {
	Window ClientWindowCapabilities `json:"window"`
}

type ClientWindowCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

// TextDocumentSyncKind defines how the host editor syncs document changes to
// the server.
type TextDocumentSyncKind int

const (
	TextDocumentSyncKindNone        TextDocumentSyncKind = 0
	TextDocumentSyncKindFull        TextDocumentSyncKind = 1
	TextDocumentSyncKindIncremental TextDocumentSyncKind = 2
)

type ServerCapabilities struct {
	TextDocumentSync   TextDocumentSyncKind `json:"textDocumentSync"`
	ReferencesProvider bool                 `json:"referencesProvider"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
