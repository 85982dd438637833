package bundle

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"index.html", "index.html"},
		{"./index.html", "index.html"},
		{"/css/main.css", "css/main.css"},
		{".//./js/app.js", "js/app.js"},
		{"img\\logo.png", "img/logo.png"},
		{"a/b/../c.js", "a/c.js"},
		{"folder/", ""},
		{"../escape.js", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_CollisionKeepsFirstPositionLastContent(t *testing.T) {
	b := New([]File{
		{Path: "index.html", Content: []byte("<html></html>")},
		{Path: "style.css", Content: []byte("first")},
		{Path: "Dynamic.js", Content: []byte("var a = 1;")},
		{Path: "./style.css", Content: []byte("second")},
	})

	if diff := cmp.Diff([]string{"index.html", "style.css", "Dynamic.js"}, b.Paths()); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	f, ok := b.File("style.css")
	if !ok {
		t.Fatal("style.css missing")
	}
	if string(f.Content) != "second" {
		t.Errorf("expected later content to win, got %q", f.Content)
	}
}

func TestNew_EntryDetection(t *testing.T) {
	tests := []struct {
		name      string
		paths     []string
		wantEntry string
	}{
		{"root entry", []string{"a.css", "index.html"}, "index.html"},
		{"case insensitive", []string{"INDEX.HTML"}, "INDEX.HTML"},
		{"shallowest wins", []string{"deep/nested/index.html", "banner/index.html"}, "banner/index.html"},
		{"tie keeps order", []string{"b/index.html", "a/index.html"}, "b/index.html"},
		{"missing", []string{"main.js", "logo.png"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := make([]File, len(tt.paths))
			for i, p := range tt.paths {
				files[i] = File{Path: p, Content: []byte("x")}
			}
			b := New(files)
			if b.EntryPath() != tt.wantEntry {
				t.Errorf("EntryPath() = %q, want %q", b.EntryPath(), tt.wantEntry)
			}
			if b.HasEntry() != (tt.wantEntry != "") {
				t.Errorf("HasEntry() = %v", b.HasEntry())
			}
		})
	}
}

func TestNew_ConfigNameOverride(t *testing.T) {
	b := New([]File{
		{Path: "Dynamic.js", Content: []byte("a")},
		{Path: "settings.js", Content: []byte("b")},
	}, WithConfigName("settings.js"))

	if b.ConfigPath() != "settings.js" {
		t.Errorf("ConfigPath() = %q", b.ConfigPath())
	}
	text, ok := b.ConfigText()
	if !ok || text != "b" {
		t.Errorf("ConfigText() = %q, %v", text, ok)
	}
}

func TestWithFile_SharesOtherContent(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	src := New([]File{
		{Path: "index.html", Content: []byte("<html></html>")},
		{Path: "logo.png", Content: img},
		{Path: "Dynamic.js", Content: []byte("var headline = \"X\";")},
	})

	derived := src.WithFile("Dynamic.js", []byte("var headline = \"Hello\";"))

	orig, _ := src.ConfigText()
	if orig != "var headline = \"X\";" {
		t.Errorf("source bundle was modified: %q", orig)
	}
	got, _ := derived.ConfigText()
	if got != "var headline = \"Hello\";" {
		t.Errorf("derived config = %q", got)
	}

	a, _ := src.File("logo.png")
	b, _ := derived.File("logo.png")
	if &a.Content[0] != &b.Content[0] {
		t.Error("expected derived bundle to share image content")
	}
	if diff := cmp.Diff(src.Paths(), derived.Paths()); diff != "" {
		t.Errorf("order changed (-src +derived):\n%s", diff)
	}
}

func TestFlatNames_SuffixesCollisions(t *testing.T) {
	b := New([]File{
		{Path: "index.html"},
		{Path: "img/logo.png"},
		{Path: "alt/logo.png"},
		{Path: "other/LOGO.png"},
		{Path: "noext/README"},
		{Path: "README"},
	})

	want := []FlatName{
		{Path: "index.html", Name: "index.html"},
		{Path: "img/logo.png", Name: "logo.png"},
		{Path: "alt/logo.png", Name: "logo-2.png"},
		{Path: "other/LOGO.png", Name: "LOGO-3.png"},
		{Path: "noext/README", Name: "README"},
		{Path: "README", Name: "README-2"},
	}
	if diff := cmp.Diff(want, b.FlatNames()); diff != "" {
		t.Errorf("flat names mismatch (-want +got):\n%s", diff)
	}

	f, ok := b.ByFlatName("logo-2.png")
	if !ok || f.Path != "alt/logo.png" {
		t.Errorf("ByFlatName(logo-2.png) = %+v, %v", f, ok)
	}
	name, ok := b.FlatName("./img/logo.png")
	if !ok || name != "logo.png" {
		t.Errorf("FlatName(img/logo.png) = %q, %v", name, ok)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]AssetClass{
		"app.js":       ClassScript,
		"css/MAIN.CSS": ClassStylesheet,
		"img/a.JPEG":   ClassImage,
		"vector.svg":   ClassImage,
		"font.woff2":   ClassUnknown,
		"index.html":   ClassUnknown,
	}
	for p, want := range tests {
		if got := Classify(p); got != want {
			t.Errorf("Classify(%q) = %v, want %v", p, got, want)
		}
	}
	if ContentType("a.css") != "text/css; charset=utf-8" {
		t.Errorf("unexpected css content type %q", ContentType("a.css"))
	}
	if ContentType("blob.unknownext") != "application/octet-stream" {
		t.Errorf("unexpected fallback %q", ContentType("blob.unknownext"))
	}
}

func TestIsText(t *testing.T) {
	if !IsText("Dynamic.js", []byte("var a = 1;\n")) {
		t.Error("script should be text")
	}
	if IsText("logo.png", []byte("looks like text")) {
		t.Error("png should never be text")
	}
	if IsText("data.bin", []byte{0x00, 0x01, 0x02}) {
		t.Error("null bytes should be binary")
	}
	if IsBinary(nil) {
		t.Error("empty content is not binary")
	}
}

func TestFile_ContentType(t *testing.T) {
	tests := []struct {
		file File
		want string
	}{
		{File{Path: "a.css", Content: []byte("body{}")}, "text/css; charset=utf-8"},
		{File{Path: "copy.unknownext", Content: []byte("plain words\n")}, "text/plain; charset=utf-8"},
		{File{Path: "blob.unknownext", Content: []byte{0x00, 0x01, 0x02}}, "application/octet-stream"},
		{File{Path: "logo.png", Content: []byte("looks like text")}, "image/png"},
	}
	for _, tt := range tests {
		if got := tt.file.ContentType(); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.file.Path, got, tt.want)
		}
	}
	if !(File{Path: "Dynamic.js", Content: []byte("var a = 1;")}).IsText() {
		t.Error("script should be text")
	}
}

func buildZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte("content of " + name)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestFromZip_SkipsResourceForks(t *testing.T) {
	data := buildZip(t,
		"banner/",
		"banner/index.html",
		"banner/Dynamic.js",
		"__MACOSX/banner/._index.html",
		"banner/._Dynamic.js",
		"banner/img/logo.png",
	)

	b, err := FromZip(data)
	if err != nil {
		t.Fatalf("FromZip: %v", err)
	}
	want := []string{"banner/index.html", "banner/Dynamic.js", "banner/img/logo.png"}
	if diff := cmp.Diff(want, b.Paths()); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if b.EntryPath() != "banner/index.html" || b.ConfigPath() != "banner/Dynamic.js" {
		t.Errorf("entry=%q config=%q", b.EntryPath(), b.ConfigPath())
	}
}

func TestFromZip_InvalidArchive(t *testing.T) {
	if _, err := FromZip([]byte("not a zip")); err == nil {
		t.Error("expected error for invalid archive")
	}
}

func TestIsResourceFork(t *testing.T) {
	tests := map[string]bool{
		"__MACOSX/x.js":     true,
		"a/__MACOSX/b.png":  true,
		"a/._hidden.js":     true,
		"._root":            true,
		".DS_Store":         true,
		"a/normal._name.js": false,
		"index.html":        false,
	}
	for name, want := range tests {
		if got := IsResourceFork(name); got != want {
			t.Errorf("IsResourceFork(%q) = %v, want %v", name, got, want)
		}
	}
}
