// Package blob holds the in-memory handles one render creates for its
// serialized document and background images. A Store belongs to exactly
// one request and must be released with RevokeAll when the request ends.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every reference handed out by a Store.
const Scheme = "blob:"

var ErrRevoked = errors.New("blob revoked or unknown")

type entry struct {
	data []byte
	mime string
}

// Store maps blob references to bytes.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	created int
}

// Getter resolves references created by a Store.
type Getter interface {
	Get(ref string) ([]byte, string, error)
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Put stores data and returns a reference to it.
func (s *Store) Put(data []byte, mime string) string {
	ref := Scheme + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ref] = entry{data: data, mime: mime}
	s.created++
	return ref
}

func (s *Store) Get(ref string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ref]
	if !ok {
		return nil, "", ErrRevoked
	}
	return e.data, e.mime, nil
}

func (s *Store) Revoke(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ref)
}

// RevokeAll releases every live handle and returns how many were released.
func (s *Store) RevokeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]entry)
	return n
}

// Len reports the number of live handles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Created reports how many handles were ever handed out.
func (s *Store) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func IsRef(s string) bool {
	return strings.HasPrefix(s, Scheme)
}
