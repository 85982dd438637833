package assets

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bannerbuildr/internal/bundle"
)

const (
	// DefaultServedPrefix is the route prefix of per-bundle asset serving.
	DefaultServedPrefix = "/api/v1/banners/"
	// DefaultAssetBasePath is the segment between bundle id and file name.
	DefaultAssetBasePath = "assets"
	// DefaultMaxParallel bounds concurrent allocations within one resolution.
	DefaultMaxParallel = 8
)

// ErrAssetResolution marks a file whose locator could not be produced.
var ErrAssetResolution = errors.New("asset resolution failed")

// ResolutionError reports one file that could not be resolved. Its
// references are left untouched.
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrAssetResolution, e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrAssetResolution, e.Err}
}

// Strategy selects how locators are produced.
type Strategy int

const (
	// StrategyEphemeral allocates a revocable handle per file.
	StrategyEphemeral Strategy = iota
	// StrategyServedPath points at the per-bundle asset route.
	StrategyServedPath
)

func (s Strategy) String() string {
	if s == StrategyServedPath {
		return "served"
	}
	return "ephemeral"
}

// ParseStrategy accepts "ephemeral" and "served" (or "served_path").
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ephemeral", "handle", "handles":
		return StrategyEphemeral, nil
	case "served", "served_path", "servedpath", "path":
		return StrategyServedPath, nil
	}
	return StrategyEphemeral, fmt.Errorf("unknown asset strategy %q", s)
}

// Config configures a Resolver.
type Config struct {
	Strategy      Strategy
	ServedPrefix  string
	AssetBasePath string
	MaxParallel   int
}

// Resolver produces locators for the files of a bundle and rewrites
// references between them.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver, applying defaults for empty fields.
func NewResolver(cfg Config) *Resolver {
	if cfg.ServedPrefix == "" {
		cfg.ServedPrefix = DefaultServedPrefix
	}
	if !strings.HasSuffix(cfg.ServedPrefix, "/") {
		cfg.ServedPrefix += "/"
	}
	if cfg.AssetBasePath == "" {
		cfg.AssetBasePath = DefaultAssetBasePath
	}
	cfg.AssetBasePath = strings.Trim(cfg.AssetBasePath, "/")
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	return &Resolver{cfg: cfg}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.cfg.Strategy
}

// ServedLocator is the stable URL of a file under the served-path strategy.
func (r *Resolver) ServedLocator(bundleID, flatName string) string {
	return r.cfg.ServedPrefix + url.PathEscape(bundleID) + "/" + r.cfg.AssetBasePath + "/" + url.PathEscape(flatName)
}

// Resolution is the outcome of resolving one bundle.
type Resolution struct {
	// Bundle is the input with stylesheet and script references rewritten.
	Bundle *bundle.Bundle
	// Locators maps bundle path to locator for every resolved file.
	Locators map[string]string
	// Refs maps every accepted reference name (entry-relative and full path)
	// to its locator.
	Refs     Refs
	Failures []*ResolutionError
}

// Locator returns the locator of the file at p.
func (res *Resolution) Locator(p string) (string, bool) {
	loc, ok := res.Locators[p]
	return loc, ok
}

type pending struct {
	file    bundle.File
	content []byte
}

// Resolve resolves every classified non-entry file of b. Images are resolved
// first, then stylesheets and scripts with their references rewritten, and the
// configuration script last so it can point at everything else. Under the
// ephemeral strategy scope must be non-nil and owns every handle.
func (r *Resolver) Resolve(ctx context.Context, bundleID string, b *bundle.Bundle, scope *Scope) (*Resolution, error) {
	if r.cfg.Strategy == StrategyEphemeral && scope == nil {
		return nil, errors.New("ephemeral resolution requires a scope")
	}

	entryDir := ""
	if b.HasEntry() {
		entryDir = path.Dir(b.EntryPath())
	}

	var images, sheetsAndScripts []bundle.File
	var config *bundle.File
	for _, f := range b.Files() {
		if f.Path == b.EntryPath() {
			continue
		}
		switch bundle.Classify(f.Path) {
		case bundle.ClassImage:
			images = append(images, f)
		case bundle.ClassStylesheet:
			sheetsAndScripts = append(sheetsAndScripts, f)
		case bundle.ClassScript:
			if f.Path == b.ConfigPath() {
				cf := f
				config = &cf
				continue
			}
			sheetsAndScripts = append(sheetsAndScripts, f)
		}
	}

	res := &Resolution{Locators: make(map[string]string)}
	rewritten := make(map[string][]byte)

	// Images.
	batch := make([]pending, len(images))
	for i, f := range images {
		batch[i] = pending{file: f, content: f.Content}
	}
	if err := r.resolveAll(ctx, bundleID, b, scope, batch, res); err != nil {
		return nil, err
	}

	// Stylesheets and non-config scripts.
	imageRefs := res.refs(entryDir)
	imagePaths := Refs(maps.Clone(res.Locators))
	batch = batch[:0]
	for _, f := range sheetsAndScripts {
		var text string
		var n int
		if bundle.Classify(f.Path) == bundle.ClassStylesheet {
			text, n = RewriteCSSURLs(string(f.Content), f.Path, imagePaths)
		} else {
			text, n = RewriteAttributes(string(f.Content), imageRefs)
		}
		content := f.Content
		if n > 0 {
			content = []byte(text)
			rewritten[f.Path] = content
		}
		batch = append(batch, pending{file: f, content: content})
	}
	if err := r.resolveAll(ctx, bundleID, b, scope, batch, res); err != nil {
		return nil, err
	}

	// Configuration script.
	if config != nil {
		text, n := RewriteAttributes(string(config.Content), res.refs(entryDir))
		content := config.Content
		if n > 0 {
			content = []byte(text)
			rewritten[config.Path] = content
		}
		if err := r.resolveAll(ctx, bundleID, b, scope, []pending{{file: *config, content: content}}, res); err != nil {
			return nil, err
		}
	}

	res.Bundle = b
	if len(rewritten) > 0 {
		files := b.Files()
		for i := range files {
			if c, ok := rewritten[files[i].Path]; ok {
				files[i].Content = c
			}
		}
		opts := b.Options()
		res.Bundle = bundle.New(files, bundle.WithEntryName(opts.EntryName), bundle.WithConfigName(opts.ConfigName))
	}

	res.Refs = res.refs(entryDir)

	log.Debug().
		Str("bundle_id", bundleID).
		Str("strategy", r.cfg.Strategy.String()).
		Int("resolved", len(res.Locators)).
		Int("failed", len(res.Failures)).
		Msg("Resolved bundle assets")
	return res, nil
}

// refs returns the reference names of every file resolved so far: the full
// bundle path and, for files under the entry directory, the entry-relative
// path.
func (res *Resolution) refs(entryDir string) Refs {
	out := make(Refs, len(res.Locators)*2)
	for p, loc := range res.Locators {
		out[p] = loc
		if rel, ok := relativeTo(entryDir, p); ok {
			out[rel] = loc
		}
	}
	return out
}

func relativeTo(dir, p string) (string, bool) {
	if dir == "" || dir == "." {
		return p, false
	}
	if strings.HasPrefix(p, dir+"/") {
		return p[len(dir)+1:], true
	}
	return "", false
}

// resolveAll produces locators for batch concurrently and records them in res
// once every member has finished.
func (r *Resolver) resolveAll(ctx context.Context, bundleID string, b *bundle.Bundle, scope *Scope, batch []pending, res *Resolution) error {
	if len(batch) == 0 {
		return nil
	}
	locators := make([]string, len(batch))
	failures := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallel)
	for i, item := range batch {
		g.Go(func() error {
			loc, err := r.locate(gctx, bundleID, b, scope, item)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			locators[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, item := range batch {
		if failures[i] != nil {
			rerr := &ResolutionError{Path: item.file.Path, Err: failures[i]}
			log.Warn().Err(failures[i]).Str("bundle_id", bundleID).Str("path", item.file.Path).Msg("Asset could not be resolved")
			res.Failures = append(res.Failures, rerr)
			continue
		}
		res.Locators[item.file.Path] = locators[i]
	}
	return nil
}

func (r *Resolver) locate(ctx context.Context, bundleID string, b *bundle.Bundle, scope *Scope, item pending) (string, error) {
	switch r.cfg.Strategy {
	case StrategyServedPath:
		name, ok := b.FlatName(item.file.Path)
		if !ok {
			return "", fmt.Errorf("no flat name for %s", item.file.Path)
		}
		return r.ServedLocator(bundleID, name), nil
	default:
		return scope.Allocate(ctx, path.Base(item.file.Path), item.file.ContentType(), item.content)
	}
}
