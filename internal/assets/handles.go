// Package assets resolves the files of a bundle into URLs a rendered entry
// document can load, and rewrites intra-bundle references to those URLs.
package assets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultHandlePrefix is the URL prefix under which ephemeral handles are
// served.
const DefaultHandlePrefix = "/api/v1/handles/"

// ErrScopeReleased is returned when allocating in a scope that was already
// released.
var ErrScopeReleased = errors.New("scope already released")

// Handle is one ephemeral resource URL.
type Handle struct {
	Token string
	URL   string
}

// Entry is the content behind a handle.
type Entry struct {
	Name        string
	ContentType string
	Content     []byte
	CreatedAt   time.Time
}

// HandleAllocator creates, publishes and revokes ephemeral handles. Handles
// are not resolvable until committed.
type HandleAllocator interface {
	Allocate(ctx context.Context, name, contentType string, content []byte) (Handle, error)
	Commit(tokens []string)
	Revoke(tokens []string)
}

type storedEntry struct {
	Entry
	committed bool
}

// HandleStore is the in-memory HandleAllocator backing the handle endpoint.
type HandleStore struct {
	prefix string

	mu      sync.RWMutex
	entries map[string]*storedEntry

	allocated atomic.Int64
	revoked   atomic.Int64
}

// NewHandleStore creates a store whose URLs start with prefix.
func NewHandleStore(prefix string) *HandleStore {
	if prefix == "" {
		prefix = DefaultHandlePrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &HandleStore{prefix: prefix, entries: make(map[string]*storedEntry)}
}

// Allocate implements HandleAllocator.
func (s *HandleStore) Allocate(ctx context.Context, name, contentType string, content []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.entries[token] = &storedEntry{Entry: Entry{
		Name:        name,
		ContentType: contentType,
		Content:     content,
		CreatedAt:   time.Now(),
	}}
	s.mu.Unlock()
	s.allocated.Add(1)
	return Handle{Token: token, URL: s.prefix + token}, nil
}

// Commit implements HandleAllocator.
func (s *HandleStore) Commit(tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		if e, ok := s.entries[t]; ok {
			e.committed = true
		}
	}
}

// Revoke implements HandleAllocator.
func (s *HandleStore) Revoke(tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		if _, ok := s.entries[t]; ok {
			delete(s.entries, t)
			s.revoked.Add(1)
		}
	}
}

// Get returns the content of a committed handle.
func (s *HandleStore) Get(token string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[token]
	if !ok || !e.committed {
		return Entry{}, false
	}
	return e.Entry, true
}

// Live returns the number of handles that are allocated and not revoked.
func (s *HandleStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Counters returns how many handles were ever allocated and revoked.
func (s *HandleStore) Counters() (allocated, revoked int64) {
	return s.allocated.Load(), s.revoked.Load()
}

// Scope owns the handles acquired while building one document. Release
// revokes them exactly once, whichever exit path calls it first.
type Scope struct {
	alloc HandleAllocator

	mu        sync.Mutex
	tokens    []string
	committed bool
	released  bool
	once      sync.Once
}

// NewScope creates a scope over alloc.
func NewScope(alloc HandleAllocator) *Scope {
	return &Scope{alloc: alloc}
}

// Allocate acquires a handle owned by the scope.
func (s *Scope) Allocate(ctx context.Context, name, contentType string, content []byte) (string, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return "", ErrScopeReleased
	}
	s.mu.Unlock()

	h, err := s.alloc.Allocate(ctx, name, contentType, content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		s.alloc.Revoke([]string{h.Token})
		return "", ErrScopeReleased
	}
	s.tokens = append(s.tokens, h.Token)
	return h.URL, nil
}

// Commit makes every handle of the scope resolvable.
func (s *Scope) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || s.committed {
		return
	}
	s.committed = true
	s.alloc.Commit(s.tokens)
}

// Release revokes every handle of the scope. Safe to call more than once.
func (s *Scope) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		tokens := s.tokens
		s.tokens = nil
		s.mu.Unlock()
		if len(tokens) > 0 {
			s.alloc.Revoke(tokens)
		}
	})
}

// Handles returns the tokens currently owned.
func (s *Scope) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}
