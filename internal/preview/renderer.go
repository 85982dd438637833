// Package preview assembles variation bundles into self-contained documents
// and tracks the current document of every variation.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/assets"
	"github.com/bannerbuildr/internal/bundle"
)

var (
	// ErrMissingEntryPoint marks a bundle without an entry document. The
	// renderer degrades to Placeholder.
	ErrMissingEntryPoint = errors.New("entry document not found")
	// ErrSuperseded is returned by a render that finished after a newer
	// render of the same variation started.
	ErrSuperseded = errors.New("render superseded by a newer request")
)

// State is the lifecycle state of a variation preview.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Document is a rendered preview. It owns the handles its markup points at.
type Document struct {
	VariationID string
	BundleID    string
	Generation  uint64
	Markup      string
	// Bundle holds the rewritten assets served for this document; nil for
	// the placeholder.
	Bundle    *bundle.Bundle
	Failures  []*assets.ResolutionError
	Err       error
	CreatedAt time.Time

	source *bundle.Bundle
	scope  *assets.Scope
}

// Placeholder reports whether the document is the missing-entry placeholder.
func (d *Document) Placeholder() bool {
	return errors.Is(d.Err, ErrMissingEntryPoint)
}

// Handles returns the handle tokens owned by the document.
func (d *Document) Handles() []string {
	if d == nil || d.scope == nil {
		return nil
	}
	return d.scope.Handles()
}

func (d *Document) release() {
	if d != nil && d.scope != nil {
		d.scope.Release()
	}
}

type view struct {
	generation uint64
	state      State
	doc        *Document
	err        error
}

// Renderer renders variations and keeps at most one published document per
// variation.
type Renderer struct {
	resolver *assets.Resolver
	alloc    assets.HandleAllocator

	mu      sync.Mutex
	views   map[string]*view
	nextGen uint64
}

// NewRenderer creates a renderer. alloc may be nil when resolver uses the
// served-path strategy.
func NewRenderer(resolver *assets.Resolver, alloc assets.HandleAllocator) *Renderer {
	return &Renderer{
		resolver: resolver,
		alloc:    alloc,
		views:    make(map[string]*view),
	}
}

// Render builds the document for b and publishes it as the current document
// of variationID, releasing the one it replaces. If another Render of the same
// variation starts before this one finishes, this one returns ErrSuperseded
// and revokes everything it allocated.
func (r *Renderer) Render(ctx context.Context, variationID, bundleID string, b *bundle.Bundle) (*Document, error) {
	gen := r.begin(variationID)
	logger := log.With().Str("variation_id", variationID).Str("bundle_id", bundleID).Uint64("generation", gen).Logger()

	entry, ok := b.EntryMarkup()
	if !ok {
		doc := &Document{
			VariationID: variationID,
			BundleID:    bundleID,
			Generation:  gen,
			Markup:      Placeholder,
			Err:         ErrMissingEntryPoint,
			CreatedAt:   time.Now(),
			source:      b,
		}
		if err := r.publish(variationID, gen, doc, StateError); err != nil {
			return nil, err
		}
		logger.Warn().Msg("Bundle has no entry document, rendering placeholder")
		return doc, nil
	}

	var scope *assets.Scope
	if r.resolver.Strategy() == assets.StrategyEphemeral {
		if r.alloc == nil {
			err := errors.New("no handle allocator configured")
			r.fail(variationID, gen, err)
			return nil, err
		}
		scope = assets.NewScope(r.alloc)
	}

	res, err := r.resolver.Resolve(ctx, bundleID, b, scope)
	if err != nil {
		if scope != nil {
			scope.Release()
		}
		r.fail(variationID, gen, err)
		return nil, fmt.Errorf("resolve assets: %w", err)
	}

	doc := &Document{
		VariationID: variationID,
		BundleID:    bundleID,
		Generation:  gen,
		Markup:      Assemble(entry, res.Bundle, res),
		Bundle:      res.Bundle,
		Failures:    res.Failures,
		CreatedAt:   time.Now(),
		source:      b,
		scope:       scope,
	}
	if err := r.publish(variationID, gen, doc, StateReady); err != nil {
		doc.release()
		logger.Debug().Msg("Discarded superseded render")
		return nil, err
	}
	logger.Info().Int("handles", len(doc.Handles())).Int("failures", len(doc.Failures)).Msg("Preview ready")
	return doc, nil
}

// Ensure returns the current document of variationID when it was rendered
// from b, and renders b otherwise.
func (r *Renderer) Ensure(ctx context.Context, variationID, bundleID string, b *bundle.Bundle) (*Document, error) {
	if doc, ok := r.Current(variationID); ok && doc.source == b {
		return doc, nil
	}
	return r.Render(ctx, variationID, bundleID, b)
}

func (r *Renderer) begin(variationID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[variationID]
	if !ok {
		v = &view{}
		r.views[variationID] = v
	}
	r.nextGen++
	v.generation = r.nextGen
	v.state = StateLoading
	v.err = nil
	return v.generation
}

// publish makes doc current when gen is still the latest generation. The
// document's handles are committed before it becomes visible.
func (r *Renderer) publish(variationID string, gen uint64, doc *Document, state State) error {
	r.mu.Lock()
	v, ok := r.views[variationID]
	if !ok || v.generation != gen {
		r.mu.Unlock()
		return ErrSuperseded
	}
	if doc.scope != nil {
		doc.scope.Commit()
	}
	prev := v.doc
	v.doc = doc
	v.state = state
	v.err = doc.Err
	r.mu.Unlock()

	if prev != nil && prev != doc {
		prev.release()
	}
	return nil
}

// fail records a failed render. The published document stays current and
// keeps its handles; only a newer document or Teardown releases it. A
// canceled render leaves the variation in the state of that document.
func (r *Renderer) fail(variationID string, gen uint64, err error) {
	r.mu.Lock()
	v, ok := r.views[variationID]
	if !ok || v.generation != gen {
		r.mu.Unlock()
		return
	}
	if errors.Is(err, context.Canceled) && v.doc != nil {
		v.state, v.err = StateReady, nil
		if v.doc.Err != nil {
			v.state, v.err = StateError, v.doc.Err
		}
		r.mu.Unlock()
		log.Debug().Str("variation_id", variationID).Msg("Preview render canceled")
		return
	}
	v.state = StateError
	v.err = err
	r.mu.Unlock()

	log.Error().Err(err).Str("variation_id", variationID).Msg("Preview failed")
}

// Current returns the published document of a variation.
func (r *Renderer) Current(variationID string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[variationID]
	if !ok || v.doc == nil {
		return nil, false
	}
	return v.doc, true
}

// State returns the state of a variation and the error of a failed render.
func (r *Renderer) State(variationID string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[variationID]
	if !ok {
		return StateIdle, nil
	}
	return v.state, v.err
}

// Teardown releases the current document of a variation. A render still in
// flight for it is superseded.
func (r *Renderer) Teardown(variationID string) {
	r.mu.Lock()
	v, ok := r.views[variationID]
	if ok {
		delete(r.views, variationID)
	}
	r.mu.Unlock()
	if ok {
		v.doc.release()
	}
}

// Close tears down every variation.
func (r *Renderer) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*view)
	r.mu.Unlock()
	for _, v := range views {
		v.doc.release()
	}
}
