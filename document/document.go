// Package document holds the text of the documents the editor has open.
package document

import (
	"github.com/corymhall/textlsp/lsp"
)

// Handle is a read-only view of a document.
type Handle interface {
	URI() lsp.DocumentURI
	Version() int32
	Text() string
}

// Document is an open text document. Values are snapshots: the store
// replaces its copy on every change, so a Document handed out never changes
// underneath the caller.
type Document struct {
	uri        lsp.DocumentURI
	languageID lsp.LanguageKind
	version    int32
	text       string
}

var _ Handle = Document{}

func (d Document) URI() lsp.DocumentURI         { return d.uri }
func (d Document) LanguageID() lsp.LanguageKind { return d.languageID }
func (d Document) Version() int32               { return d.version }
func (d Document) Text() string                 { return d.text }

// An Action is a type of document state change.
type Action int

const (
	UnknownAction = Action(iota)
	Opened
	Changed
	Closed
)

func (a Action) String() string {
	switch a {
	case Opened:
		return "Opened"
	case Changed:
		return "Changed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Event describes a state change of one document. For Closed, Document is
// the last state the document had before it was removed.
type Event struct {
	Action   Action
	Document Document
}

// Change is one content change sent by the editor. A nil Range replaces the
// whole text.
type Change struct {
	Range *lsp.Range
	Text  string
}

// ChangesFromLSP converts the wire form of content changes.
func ChangesFromLSP(events []lsp.TextDocumentContentChangeEvent) []Change {
	changes := make([]Change, len(events))
	for i, ev := range events {
		changes[i] = Change{Range: ev.Range, Text: ev.Text}
	}
	return changes
}
