// Package documents holds the text of the document the conversation is
// about.
package documents

import (
	"strings"
	"sync"
)

// Store keeps the extracted text of the current document. The zero value is
// an empty store ready to use.
type Store struct {
	mu   sync.RWMutex
	name string
	text string
}

func NewStore() *Store { return &Store{} }

// Set replaces the stored document.
func (s *Store) Set(name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.text = text
}

// Text returns the stored text, or "" when nothing is stored.
func (s *Store) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// WordCount is the number of whitespace separated words in the document.
func (s *Store) WordCount() int {
	return CountWords(s.Text())
}

func (s *Store) Clear() {
	s.Set("", "")
}

func CountWords(text string) int {
	return len(strings.Fields(text))
}
