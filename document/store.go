package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/lsp"
)

var (
	// ErrDuplicateDocument is returned when a document is opened twice.
	ErrDuplicateDocument = errors.New("document already open")
	// ErrUnknownDocument is returned for changes to a document that is not open.
	ErrUnknownDocument = errors.New("document not open")
)

// Listener is called for every state change, after the store has been
// updated and before the mutating call returns.
type Listener func(ctx context.Context, ev Event)

// Store is the set of open documents, keyed by URI.
type Store struct {
	mu        sync.RWMutex
	docs      map[lsp.DocumentURI]*Document
	listeners []Listener
}

func NewStore() *Store {
	return &Store{docs: make(map[lsp.DocumentURI]*Document)}
}

// Subscribe registers l. Listeners are called in registration order.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Open starts tracking a document.
func (s *Store) Open(ctx context.Context, uri lsp.DocumentURI, languageID lsp.LanguageKind, version int32, text string) error {
	s.mu.Lock()
	if _, ok := s.docs[uri]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, uri)
	}
	doc := &Document{uri: uri, languageID: languageID, version: version, text: text}
	s.docs[uri] = doc
	s.mu.Unlock()

	debug.Debug.Log(ctx, "opened document", slog.String("uri", string(uri)), slog.Int("version", int(version)))
	s.notify(ctx, Event{Action: Opened, Document: *doc})
	return nil
}

// ApplyChange applies changes to an open document and records version as its
// new version.
func (s *Store) ApplyChange(ctx context.Context, uri lsp.DocumentURI, version int32, changes []Change) error {
	s.mu.Lock()
	old, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	doc := &Document{
		uri:        uri,
		languageID: old.languageID,
		version:    version,
		text:       applyChanges(old.text, changes),
	}
	s.docs[uri] = doc
	s.mu.Unlock()

	debug.Debug.Log(ctx, "changed document",
		slog.String("uri", string(uri)),
		slog.Int("version", int(version)),
		slog.Int("changes", len(changes)))
	s.notify(ctx, Event{Action: Changed, Document: *doc})
	return nil
}

// Close stops tracking a document.
func (s *Store) Close(ctx context.Context, uri lsp.DocumentURI) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	delete(s.docs, uri)
	s.mu.Unlock()

	debug.Debug.Log(ctx, "closed document", slog.String("uri", string(uri)))
	s.notify(ctx, Event{Action: Closed, Document: *doc})
	return nil
}

// Get returns a snapshot of the open document at uri.
func (s *Store) Get(uri lsp.DocumentURI) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// URIs returns the URIs of all open documents, sorted.
func (s *Store) URIs() []lsp.DocumentURI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]lsp.DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris
}

func (s *Store) notify(ctx context.Context, ev Event) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, ev)
	}
}
