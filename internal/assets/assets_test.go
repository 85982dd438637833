package assets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerbuildr/internal/bundle"
)

func TestRewriteAttributes(t *testing.T) {
	refs := Refs{"script.js": "blob:1", "img/logo.png": "blob:2"}
	tests := []struct {
		name  string
		in    string
		want  string
		count int
	}{
		{"double quotes", `<script src="script.js"></script>`, `<script src="blob:1"></script>`, 1},
		{"single quotes", `<img src='img/logo.png'>`, `<img src='blob:2'>`, 1},
		{"dot slash", `<script src="./script.js"></script>`, `<script src="blob:1"></script>`, 1},
		{"leading slash", `<a href="/img/logo.png">`, `<a href="blob:2">`, 1},
		{"partial name", `<script src="myscript.js"></script>`, `<script src="myscript.js"></script>`, 0},
		{"suffix", `<script src="script.js.map"></script>`, `<script src="script.js.map"></script>`, 0},
		{"case of attribute", `<IMG SRC="img/logo.png">`, `<IMG SRC="blob:2">`, 1},
		{"unknown", `<link href="font.woff">`, `<link href="font.woff">`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := RewriteAttributes(tt.in, refs)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestRewriteAttributes_Idempotent(t *testing.T) {
	refs := Refs{"script.js": "/api/v1/banners/b1/assets/script.js", "logo.png": "/api/v1/banners/b1/assets/logo.png"}
	doc := `<html><head><script src="script.js"></script></head><body><img src='./logo.png'><script src="myscript.js"></script></body></html>`

	once, _ := RewriteAttributes(doc, refs)
	twice, n := RewriteAttributes(once, refs)
	assert.Equal(t, once, twice)
	assert.Zero(t, n)
	assert.Contains(t, once, `src="myscript.js"`)
}

func TestRewriteCSSURLs(t *testing.T) {
	byPath := Refs{"img/bg.png": "blob:bg", "logo.png": "blob:logo"}
	css := `body{background:url(bg.png)} .a{background:url("../logo.png")} .b{background:url('data:image/png;base64,xx')} .c{background:url(missing.png)}`
	got, n := RewriteCSSURLs(css, "img/style.css", byPath)
	assert.Equal(t, 2, n)
	assert.Equal(t, `body{background:url("blob:bg")} .a{background:url("blob:logo")} .b{background:url('data:image/png;base64,xx')} .c{background:url(missing.png)}`, got)
}

func TestScope_ReleaseOnce(t *testing.T) {
	store := NewHandleStore("")
	scope := NewScope(store)

	u, err := scope.Allocate(context.Background(), "logo.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, DefaultHandlePrefix))

	token := strings.TrimPrefix(u, DefaultHandlePrefix)
	_, ok := store.Get(token)
	assert.False(t, ok, "pending handles are not resolvable")

	scope.Commit()
	e, ok := store.Get(token)
	require.True(t, ok)
	assert.Equal(t, "logo.png", e.Name)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope.Release()
		}()
	}
	wg.Wait()

	allocated, revoked := store.Counters()
	assert.Equal(t, int64(1), allocated)
	assert.Equal(t, int64(1), revoked)
	assert.Zero(t, store.Live())

	_, err = scope.Allocate(context.Background(), "x.png", "image/png", nil)
	assert.ErrorIs(t, err, ErrScopeReleased)
}

func testBundle() *bundle.Bundle {
	return bundle.New([]bundle.File{
		{Path: "index.html", Content: []byte(`<html><head><link href="style.css" rel="stylesheet"></head><body><img src="images/logo.png"><script src="app.js"></script></body></html>`)},
		{Path: "style.css", Content: []byte(`body{background:url(images/bg.png)}`)},
		{Path: "app.js", Content: []byte(`el.innerHTML = '<img src="images/logo.png">';`)},
		{Path: "Dynamic.js", Content: []byte(`var cta = '<a href="app.js">go</a>';`)},
		{Path: "images/logo.png", Content: []byte("logo")},
		{Path: "images/bg.png", Content: []byte("bg")},
		{Path: "fonts/a.woff2", Content: []byte("font")},
	})
}

func TestResolve_ServedPath(t *testing.T) {
	r := NewResolver(Config{Strategy: StrategyServedPath})
	b := testBundle()

	res, err := r.Resolve(context.Background(), "b1", b, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	assert.Equal(t, "/api/v1/banners/b1/assets/logo.png", res.Locators["images/logo.png"])
	assert.Equal(t, "/api/v1/banners/b1/assets/style.css", res.Locators["style.css"])
	_, ok := res.Locators["fonts/a.woff2"]
	assert.False(t, ok, "unknown extensions are not resolved")
	_, ok = res.Locators["index.html"]
	assert.False(t, ok)

	css, _ := res.Bundle.File("style.css")
	assert.Equal(t, `body{background:url("/api/v1/banners/b1/assets/bg.png")}`, string(css.Content))
	app, _ := res.Bundle.File("app.js")
	assert.Equal(t, `el.innerHTML = '<img src="/api/v1/banners/b1/assets/logo.png">';`, string(app.Content))
	cfg, _ := res.Bundle.File("Dynamic.js")
	assert.Equal(t, `var cta = '<a href="/api/v1/banners/b1/assets/app.js">go</a>';`, string(cfg.Content))

	orig, _ := b.File("style.css")
	assert.Equal(t, `body{background:url(images/bg.png)}`, string(orig.Content), "input bundle is not modified")
}

func TestResolve_EphemeralCommitsNothing(t *testing.T) {
	store := NewHandleStore("/h/")
	r := NewResolver(Config{Strategy: StrategyEphemeral, MaxParallel: 2})
	scope := NewScope(store)

	res, err := r.Resolve(context.Background(), "b1", testBundle(), scope)
	require.NoError(t, err)
	assert.Len(t, res.Locators, 5)
	assert.Len(t, scope.Handles(), 5)

	for _, tok := range scope.Handles() {
		_, ok := store.Get(tok)
		assert.False(t, ok)
	}

	// The config handle carries the rewritten script.
	cfgTok := strings.TrimPrefix(res.Locators["Dynamic.js"], "/h/")
	scope.Commit()
	e, ok := store.Get(cfgTok)
	require.True(t, ok)
	assert.Contains(t, string(e.Content), res.Locators["app.js"])

	scope.Release()
	assert.Zero(t, store.Live())
}

func TestResolve_EphemeralRequiresScope(t *testing.T) {
	_, err := NewResolver(Config{}).Resolve(context.Background(), "b1", testBundle(), nil)
	assert.Error(t, err)
}

type failingAllocator struct {
	*HandleStore
	fail string
}

func (f *failingAllocator) Allocate(ctx context.Context, name, ct string, content []byte) (Handle, error) {
	if name == f.fail {
		return Handle{}, errors.New("quota exceeded")
	}
	return f.HandleStore.Allocate(ctx, name, ct, content)
}

func TestResolve_PerFileFailure(t *testing.T) {
	alloc := &failingAllocator{HandleStore: NewHandleStore(""), fail: "bg.png"}
	scope := NewScope(alloc)
	defer scope.Release()

	res, err := NewResolver(Config{}).Resolve(context.Background(), "b1", testBundle(), scope)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "images/bg.png", res.Failures[0].Path)
	assert.ErrorIs(t, res.Failures[0], ErrAssetResolution)

	var rerr *ResolutionError
	require.ErrorAs(t, error(res.Failures[0]), &rerr)

	css, _ := res.Bundle.File("style.css")
	assert.Equal(t, `body{background:url(images/bg.png)}`, string(css.Content), "failing reference is left untouched")
	assert.Contains(t, res.Locators, "images/logo.png")
}

func TestResolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scope := NewScope(NewHandleStore(""))
	defer scope.Release()

	_, err := NewResolver(Config{}).Resolve(ctx, "b1", testBundle(), scope)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("served")
	require.NoError(t, err)
	assert.Equal(t, StrategyServedPath, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyEphemeral, s)

	_, err = ParseStrategy("cdn")
	assert.Error(t, err)
}
