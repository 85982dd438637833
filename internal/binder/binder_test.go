package binder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/pkg/models"
)

func templateBundle(script string) *bundle.Bundle {
	return bundle.New([]bundle.File{
		{Path: "index.html", Content: []byte(`<html><head><meta name="ad.size" content="width=728,height=90"></head><body></body></html>`)},
		{Path: "img/logo.png", Content: []byte{0x89, 'P', 'N', 'G'}},
		{Path: "Dynamic.js", Content: []byte(script)},
	})
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestBind_DynamicScenario(t *testing.T) {
	src := templateBundle(`var headline="X";`)
	m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "headline"})
	roles := []models.RoleRecord{{Role: "parent", ID: "1", Record: models.DataRecord{"Headline": "Hello"}}}

	v, err := New(Options{Now: fixedNow}).Bind(src, m, roles, Request{Label: "Jeep", Tier: models.TierOne})
	require.NoError(t, err)

	got, _ := v.Bundle.ConfigText()
	assert.Equal(t, `var headline="Hello";`, got)
	assert.False(t, v.Incomplete)
	assert.NoError(t, v.Warning())
	assert.Equal(t, "Jeep_1_T1", v.Name)
	assert.Equal(t, models.Dimensions{Width: 728, Height: 90}, v.Dimensions)
	assert.Equal(t, fixedNow(), v.CreatedAt)
	assert.NotEmpty(t, v.ID)

	// source untouched, other files shared
	orig, _ := src.ConfigText()
	assert.Equal(t, `var headline="X";`, orig)
	a, _ := src.File("img/logo.png")
	b, _ := v.Bundle.File("img/logo.png")
	assert.Same(t, &a.Content[0], &b.Content[0])
	assert.Equal(t, src.Paths(), v.Bundle.Paths())
}

func TestBind_TwoRecordsShareTemplate(t *testing.T) {
	const script = "var headline = \"X\";\nvar cta = \"Go\";\n"
	src := templateBundle(script)
	m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "headline"})
	bd := New(Options{})

	first, err := bd.Bind(src, m, []models.RoleRecord{{Role: "parent", ID: "1", Record: models.DataRecord{"Headline": "Hello"}}}, Request{})
	require.NoError(t, err)
	second, err := bd.Bind(src, m, []models.RoleRecord{{Role: "parent", ID: "2", Record: models.DataRecord{"Headline": "Bonjour"}}}, Request{})
	require.NoError(t, err)

	for _, p := range []string{"index.html", "img/logo.png"} {
		orig, _ := src.File(p)
		a, _ := first.Bundle.File(p)
		b, _ := second.Bundle.File(p)
		assert.Same(t, &orig.Content[0], &a.Content[0], p)
		assert.Same(t, &orig.Content[0], &b.Content[0], p)
	}

	got, _ := src.ConfigText()
	assert.Equal(t, script, got)

	one, _ := first.Bundle.ConfigText()
	two, _ := second.Bundle.ConfigText()
	assert.Equal(t, "var headline = \"Hello\";\nvar cta = \"Go\";\n", one)
	assert.Equal(t, "var headline = \"Bonjour\";\nvar cta = \"Go\";\n", two)
}

func TestSubstitute_Forms(t *testing.T) {
	tests := []struct {
		name   string
		script string
		varNm  string
		value  any
		want   string
		count  int
	}{
		{"let", `let cta = 'Buy';`, "cta", "Shop", `let cta = "Shop";`, 1},
		{"const no semicolon", "const cta = `Buy`\nfoo()", "cta", "Go", "const cta = \"Go\"\nfoo()", 1},
		{"member assignment", `window.cfg.cta = "Buy";`, "cta", "Go", `window.cfg.cta = "Go";`, 1},
		{"bracket assignment", `cfg["cta"] = "Buy";`, "cta", "Go", `cfg["cta"] = "Go";`, 1},
		{"object property", `var c = { cta: "Buy", other: 1 };`, "cta", "Go", `var c = { cta: "Go", other: 1 };`, 1},
		{"quoted property", `var c = {"cta": "Buy"};`, "cta", "Go", `var c = {"cta": "Go"};`, 1},
		{"every occurrence", "var cta = 'a';\ncta = 'b';", "cta", "Z", "var cta = \"Z\";\ncta = \"Z\";", 2},
		{"prefix name untouched", `var mycta = "Buy"; var cta = "x";`, "cta", "Go", `var mycta = "Buy"; var cta = "Go";`, 1},
		{"suffix name untouched", `var ctaText = "Buy";`, "cta", "Go", `var ctaText = "Buy";`, 0},
		{"comparison untouched", `if (cta == "Buy") {}`, "cta", "Go", `if (cta == "Buy") {}`, 0},
		{"expression untouched", `var price = 5 + tax;`, "price", 9, `var price = 5 + tax;`, 0},
		{"template with placeholder untouched", "var cta = `Hi ${name}`;", "cta", "Go", "var cta = `Hi ${name}`;", 0},
		{"number default from string", `var price = 9.99;`, "price", " 12.50 ", `var price = 12.5;`, 1},
		{"number default keeps text", `var price = 9.99;`, "price", "from $9", `var price = "from $9";`, 1},
		{"bool default from string", `var showBadge = false;`, "showBadge", "TRUE", `var showBadge = true;`, 1},
		{"null default", `var promo = null;`, "promo", "Sale", `var promo = "Sale";`, 1},
		{"native number", `var price = "9";`, "price", 12.0, `var price = 12;`, 1},
		{"escaping", `var h = "x";`, "h", "a \"b\" </script>\u2028", `var h = "a \"b\" \u003c/script\u003e\u2028";`, 1},
		{"nil skipped", `var h = "x";`, "h", nil, `var h = "x";`, 0},
		{"indexed member assignment", "devDynamicContent.Feed = [{}];\ndevDynamicContent.Feed[0].Headline = \"X\";\n", "Headline", "Hello", "devDynamicContent.Feed = [{}];\ndevDynamicContent.Feed[0].Headline = \"Hello\";\n", 1},
		{"indexed bracket assignment", `a[0]["cta"] = "Buy";`, "cta", "Go", `a[0]["cta"] = "Go";`, 1},
		{"member then indexed bracket", `devDynamicContent.Feed[0]['cta'] = 'Buy';`, "cta", "Go", `devDynamicContent.Feed[0]['cta'] = "Go";`, 1},
		{"ternary branch untouched", "var headline = \"X\";\nvar cta = isMobile ? headline : \"Tap here\";", "headline", "Hello", "var headline = \"Hello\";\nvar cta = isMobile ? headline : \"Tap here\";", 1},
		{"multiline object with comment", "var c = {\n  // copy\n  cta: 'Buy'\n};", "cta", "Go", "var c = {\n  // copy\n  cta: \"Go\"\n};", 1},
		{"trailing line comment", `var headline = "X" // copy`, "headline", "Hello", `var headline = "Hello" // copy`, 1},
		{"trailing block comment", `var headline = "X" /* copy */;`, "headline", "Hello", `var headline = "Hello" /* copy */;`, 1},
		{"division untouched", `var price = 10 / 2;`, "price", 9, `var price = 10 / 2;`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Substitute(tt.script, tt.varNm, tt.value)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestBind_DuplicateVariableLastWins(t *testing.T) {
	src := templateBundle(`var headline = "X";`)
	m := mapping.NewFieldMapping(
		mapping.Pair{Field: "Title", Variable: "headline"},
		mapping.Pair{Field: "Headline", Variable: "headline"},
	)
	roles := []models.RoleRecord{{Record: models.DataRecord{"Title": "first", "Headline": "second"}}}

	v, err := New(Options{}).Bind(src, m, roles, Request{})
	require.NoError(t, err)
	got, _ := v.Bundle.ConfigText()
	assert.Equal(t, `var headline = "second";`, got)
	assert.Len(t, v.Applied, 2)
}

func TestMergeRecords_Precedence(t *testing.T) {
	roles := []models.RoleRecord{
		{Role: "parent", Record: models.DataRecord{"id": "p", "headline": "P", "cta": nil}},
		{Role: "creative", Record: models.DataRecord{"id": "c", "headline": "C", "cta": "C-cta", "logo": "c.png"}},
		{Role: "oms", Record: models.DataRecord{"id": "o", "cta": "O-cta", "logo": "o.png", "price": "9"}},
	}
	want := models.DataRecord{"id": "p", "headline": "P", "cta": "C-cta", "logo": "c.png", "price": "9"}
	if diff := cmp.Diff(want, MergeRecords(roles)); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestBind_Incomplete(t *testing.T) {
	t.Run("no applicable field", func(t *testing.T) {
		src := templateBundle(`var headline = "X";`)
		m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "ghost"})
		v, err := New(Options{}).Bind(src, m, []models.RoleRecord{{Record: models.DataRecord{"Headline": "Hi"}}}, Request{})
		require.NoError(t, err)
		assert.True(t, v.Incomplete)
		assert.True(t, errors.Is(v.Warning(), ErrMappingIncomplete))
		assert.Same(t, src, v.Bundle)
	})

	t.Run("binary configuration script", func(t *testing.T) {
		src := templateBundle("var headline = \"X\";\x00\x01\x02")
		m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "headline"})
		v, err := New(Options{}).Bind(src, m, []models.RoleRecord{{Record: models.DataRecord{"Headline": "Hi"}}}, Request{})
		require.NoError(t, err)
		assert.True(t, v.Incomplete)
		assert.Empty(t, v.Applied)
		assert.Same(t, src, v.Bundle)
		assert.Contains(t, v.Warnings, "configuration script Dynamic.js is not text")
	})

	t.Run("no configuration script", func(t *testing.T) {
		src := bundle.New([]bundle.File{{Path: "index.html", Content: []byte("<html></html>")}})
		m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "headline"})
		v, err := New(Options{}).Bind(src, m, nil, Request{Name: "explicit"})
		require.NoError(t, err)
		assert.True(t, v.Incomplete)
		assert.Equal(t, "explicit", v.Name)
		assert.Same(t, src, v.Bundle)
		assert.Equal(t, DefaultDimensions, v.Dimensions)
	})
}

func TestBind_BaseFolderPath(t *testing.T) {
	src := templateBundle(`var logo = "default.png"; var url = "x"; var cta = "y";`)
	m := mapping.NewFieldMapping(
		mapping.Pair{Field: "Logo", Variable: "logo"},
		mapping.Pair{Field: "Url", Variable: "url"},
		mapping.Pair{Field: "CTA", Variable: "cta"},
	)
	roles := []models.RoleRecord{{Record: models.DataRecord{
		"Logo": "./jeep.png",
		"Url":  "https://cdn.example.com/a.png",
		"CTA":  "Shop",
	}}}

	v, err := New(Options{BaseFolderPath: "images/"}).Bind(src, m, roles, Request{})
	require.NoError(t, err)
	got, _ := v.Bundle.ConfigText()
	assert.Equal(t, `var logo = "images/jeep.png"; var url = "https://cdn.example.com/a.png"; var cta = "Shop";`, got)

	v, err = New(Options{BaseFolderPath: "images"}).Bind(src, m, roles, Request{BaseFolderPath: "assets/T1"})
	require.NoError(t, err)
	got, _ = v.Bundle.ConfigText()
	assert.Contains(t, got, `var logo = "assets/T1/jeep.png"`)
}

type mapSource map[string]*records.Table

func (s mapSource) Fetch(ctx context.Context, sourceID, subset string) (*records.Table, error) {
	if t, ok := s[subset]; ok {
		return t, nil
	}
	return nil, errors.New("no such subset")
}

func TestBindRequests_RecordNotFound(t *testing.T) {
	src := templateBundle(`var headline = "X";`)
	m := mapping.NewFieldMapping(mapping.Pair{Field: "Headline", Variable: "headline"})
	source := mapSource{"parent": {Rows: []models.DataRecord{{"ID": " 42 ", "Headline": "Hi"}}}}

	v, err := New(Options{}).BindRequests(context.Background(), src, m, source,
		[]records.RoleRequest{{Role: "parent", Subset: "parent", ID: "42"}}, Request{Label: "L"})
	require.NoError(t, err)
	assert.Equal(t, "L_42", v.Name)

	v, err = New(Options{}).BindRequests(context.Background(), src, m, source,
		[]records.RoleRequest{
			{Role: "parent", Subset: "parent", ID: "42"},
			{Role: "creative", Subset: "creative_data", ID: "7"},
		}, Request{})
	assert.Nil(t, v)
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
	var nf *records.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "creative", nf.Role)
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		markup string
		want   models.Dimensions
	}{
		{`<meta name="ad.size" content="width=300,height=600">`, models.Dimensions{Width: 300, Height: 600}},
		{`<META content='width=160, height=600' NAME='ad.size'/>`, models.Dimensions{Width: 160, Height: 600}},
		{`<meta name="viewport" content="width=device-width"><meta name="ad.size" content="height=50">`, models.Dimensions{Height: 50}},
		{`<html></html>`, models.Dimensions{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDimensions(tt.markup), tt.markup)
	}
}

func TestVariationName(t *testing.T) {
	roles := []models.RoleRecord{{ID: "P 1"}, {ID: ""}, {ID: "c/2"}}
	assert.Equal(t, "Jeep_P-1_c-2_T2", VariationName("Jeep", roles, models.TierTwo))
	assert.Equal(t, "banner", VariationName(" ", nil, ""))
}
