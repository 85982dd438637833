// Package session keeps the templates and variations of one working session
// in memory.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/preview"
	"github.com/bannerbuildr/pkg/models"
)

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrVariationNotFound = errors.New("variation not found")
)

// Template is an ingested template archive.
type Template struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Bundle     *bundle.Bundle        `json:"-"`
	EntryPath  string                `json:"entry_path,omitempty"`
	ConfigPath string                `json:"config_path,omitempty"`
	ConfigText string                `json:"config_text"`
	Files      []string              `json:"files"`
	Dimensions models.Dimensions     `json:"dimensions"`
	Mapping    *mapping.FieldMapping `json:"mapping,omitempty"`
	UploadedAt time.Time             `json:"uploaded_at"`
}

// Store holds session state. Clearing or removing variations tears their
// previews down.
type Store struct {
	renderer *preview.Renderer

	mu         sync.RWMutex
	templates  map[string]*Template
	variations map[string]*binder.Variation
	order      []string
}

// NewStore creates an empty store. renderer may be nil.
func NewStore(renderer *preview.Renderer) *Store {
	return &Store{
		renderer:   renderer,
		templates:  make(map[string]*Template),
		variations: make(map[string]*binder.Variation),
	}
}

// AddTemplate registers a template bundle under a new id.
func (s *Store) AddTemplate(name string, b *bundle.Bundle) *Template {
	t := &Template{
		ID:         uuid.NewString(),
		Name:       name,
		Bundle:     b,
		EntryPath:  b.EntryPath(),
		ConfigPath: b.ConfigPath(),
		Files:      b.Paths(),
		Dimensions: binder.DefaultDimensions,
		UploadedAt: time.Now(),
	}
	t.ConfigText, _ = b.ConfigText()
	if markup, ok := b.EntryMarkup(); ok {
		t.Dimensions = binder.ParseDimensions(markup).WithDefaults(binder.DefaultDimensions)
	}

	s.mu.Lock()
	s.templates[t.ID] = t
	s.mu.Unlock()

	log.Info().Str("template_id", t.ID).Str("name", name).Int("files", b.Len()).Msg("Template registered")
	return t
}

// Template returns a template by id.
func (s *Store) Template(id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// SetMapping stores the field mapping of a template.
func (s *Store) SetMapping(id string, m mapping.FieldMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	t.Mapping = &m
	return nil
}

// AddVariation appends v to the collection.
func (s *Store) AddVariation(v *binder.Variation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.variations[v.ID]; !exists {
		s.order = append(s.order, v.ID)
	}
	s.variations[v.ID] = v
}

// Variation returns a variation by id.
func (s *Store) Variation(id string) (*binder.Variation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariationNotFound, id)
	}
	return v, nil
}

// Variations returns the collection in insertion order.
func (s *Store) Variations() []*binder.Variation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*binder.Variation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.variations[id])
	}
	return out
}

// RemoveVariation drops one variation and its preview.
func (s *Store) RemoveVariation(id string) bool {
	s.mu.Lock()
	_, ok := s.variations[id]
	if ok {
		delete(s.variations, id)
		s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	}
	s.mu.Unlock()
	if ok && s.renderer != nil {
		s.renderer.Teardown(id)
	}
	return ok
}

// ClearVariations drops the whole collection, releasing every preview, and
// returns how many variations were removed.
func (s *Store) ClearVariations() int {
	s.mu.Lock()
	ids := s.order
	s.order = nil
	s.variations = make(map[string]*binder.Variation)
	s.mu.Unlock()

	if s.renderer != nil {
		for _, id := range ids {
			s.renderer.Teardown(id)
		}
	}
	log.Info().Int("count", len(ids)).Msg("Variations cleared")
	return len(ids)
}

// Bundle returns the bundle served under id, which may name a variation or a
// template. For a variation with a published preview the rewritten bundle of
// that preview is returned.
func (s *Store) Bundle(id string) (*bundle.Bundle, error) {
	s.mu.RLock()
	v, isVariation := s.variations[id]
	t, isTemplate := s.templates[id]
	s.mu.RUnlock()

	switch {
	case isVariation:
		if s.renderer != nil {
			if doc, ok := s.renderer.Current(id); ok && doc.Bundle != nil {
				return doc.Bundle, nil
			}
		}
		return v.Bundle, nil
	case isTemplate:
		return t.Bundle, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrVariationNotFound, id)
}

// SourceBundle returns the unrewritten bundle under id, for downloads.
func (s *Store) SourceBundle(id string) (*bundle.Bundle, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.variations[id]; ok {
		return v.Bundle, v.Name, nil
	}
	if t, ok := s.templates[id]; ok {
		return t.Bundle, t.Name, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrVariationNotFound, id)
}
