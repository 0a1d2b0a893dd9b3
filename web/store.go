package web

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/sitter/document"
)

// ErrUnknownDocument is returned for requests naming a document that is not
// open.
var ErrUnknownDocument = errors.New("web: unknown document")

type storedDoc struct {
	mu  sync.Mutex
	doc *document.Document
}

// Store holds the open documents keyed by ID. Each document is guarded by
// its own lock so edits to different documents run in parallel.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*storedDoc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*storedDoc)}
}

// Add registers d under its ID.
func (s *Store) Add(d *document.Document) {
	s.mu.Lock()
	s.docs[d.ID()] = &storedDoc{doc: d}
	s.mu.Unlock()
}

// With runs fn with exclusive access to the document with the given ID.
func (s *Store) With(id string, fn func(*document.Document) (any, error)) (any, error) {
	s.mu.RLock()
	sd, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, id)
	}
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if sd.doc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, id)
	}
	return fn(sd.doc)
}

// Close removes the document and releases its tree. It reports whether the
// document was open.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	sd, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sd.mu.Lock()
	sd.doc.Close()
	sd.doc = nil
	sd.mu.Unlock()
	return true
}

// IDs returns the IDs of all open documents in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every open document.
func (s *Store) CloseAll() {
	for _, id := range s.IDs() {
		s.Close(id)
	}
}
