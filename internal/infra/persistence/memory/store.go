// Package memory provides the in-process state store. It keeps the document
// in serialized form so callers never share memory with the stored value, and
// it is the cache the SQL-backed stores embed.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"btxclinic/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.StateStore = (*Store)(nil)

// DriverName identifies the memory state store.
const DriverName = "memory"

// Store holds the single state slot in process memory.
type Store struct {
	mu      sync.RWMutex
	payload []byte
	saves   int
}

// NewStore returns an empty store; the first Load reports absence.
func NewStore() *Store {
	return &Store{}
}

// Load decodes the stored document.
func (s *Store) Load(_ context.Context) (domain.Document, bool, error) {
	s.mu.RLock()
	payload := s.payload
	s.mu.RUnlock()
	if payload == nil {
		return domain.Document{}, false, nil
	}
	doc, _, err := domain.DecodeDocument(payload, time.Now())
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("decode state: %w", err)
	}
	return doc, true, nil
}

// Save replaces the stored document.
func (s *Store) Save(_ context.Context, doc domain.Document) error {
	payload, err := Encode(doc)
	if err != nil {
		return err
	}
	s.ImportPayload(payload)
	return nil
}

// Driver reports the backend name.
func (s *Store) Driver() string { return DriverName }

// ExportPayload returns a copy of the serialized document, or nil when empty.
func (s *Store) ExportPayload() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payload == nil {
		return nil
	}
	return append([]byte(nil), s.payload...)
}

// ImportPayload replaces the serialized document without decoding it. A nil
// payload resets the store to empty.
func (s *Store) ImportPayload(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload == nil {
		s.payload = nil
		return
	}
	s.payload = append([]byte(nil), payload...)
	s.saves++
}

// Saves counts the replacements applied since construction.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Encode serializes a document for storage.
func Encode(doc domain.Document) ([]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return payload, nil
}
