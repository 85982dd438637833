// Package bundle holds the in-memory representation of a creative template
// archive: an ordered, immutable set of files with a resolved entry document
// and configuration script.
package bundle

import (
	"path"
	"strings"
	"sync"
)

const (
	// DefaultEntryName is the canonical entry document name.
	DefaultEntryName = "index.html"
	// DefaultConfigName is the canonical configuration script name.
	DefaultConfigName = "Dynamic.js"
)

// File is a single member of a bundle. Content must be treated as read-only:
// derived bundles share the same backing array.
type File struct {
	Path    string
	Content []byte
}

// Options controls which names identify the entry document and the
// configuration script.
type Options struct {
	EntryName  string
	ConfigName string
}

// Option mutates Options.
type Option func(*Options)

// WithEntryName overrides the canonical entry document name.
func WithEntryName(name string) Option {
	return func(o *Options) {
		if strings.TrimSpace(name) != "" {
			o.EntryName = strings.TrimSpace(name)
		}
	}
}

// WithConfigName overrides the canonical configuration script name.
func WithConfigName(name string) Option {
	return func(o *Options) {
		if strings.TrimSpace(name) != "" {
			o.ConfigName = strings.TrimSpace(name)
		}
	}
}

// Bundle is an immutable ordered mapping from normalized path to content.
type Bundle struct {
	files      []File
	index      map[string]int
	entryPath  string
	configPath string
	opts       Options

	flatOnce sync.Once
	flat     []FlatName
	flatIdx  map[string]int
}

// New builds a bundle from raw files. Paths are normalized; entries that
// normalize to nothing (directories, "..") are skipped. When two inputs
// normalize to the same path the later content replaces the earlier one but
// the file keeps its first position.
func New(files []File, opts ...Option) *Bundle {
	o := Options{EntryName: DefaultEntryName, ConfigName: DefaultConfigName}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bundle{
		files: make([]File, 0, len(files)),
		index: make(map[string]int, len(files)),
		opts:  o,
	}
	for _, f := range files {
		p := NormalizePath(f.Path)
		if p == "" {
			continue
		}
		if i, ok := b.index[p]; ok {
			b.files[i].Content = f.Content
			continue
		}
		b.index[p] = len(b.files)
		b.files = append(b.files, File{Path: p, Content: f.Content})
	}
	b.entryPath = b.findByBasename(o.EntryName)
	b.configPath = b.findByBasename(o.ConfigName)
	return b
}

// NormalizePath converts an archive member name into a bundle path: forward
// slashes, no leading "./" or "/", cleaned. It returns "" for directory names
// and paths escaping the bundle root.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	for strings.HasPrefix(p, "./") || strings.HasPrefix(p, "/") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, "./"), "/")
	}
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// findByBasename returns the shallowest path whose basename equals name
// case-insensitively; ties keep bundle order.
func (b *Bundle) findByBasename(name string) string {
	found := ""
	depth := -1
	for _, f := range b.files {
		if !strings.EqualFold(path.Base(f.Path), name) {
			continue
		}
		d := strings.Count(f.Path, "/")
		if depth == -1 || d < depth {
			found = f.Path
			depth = d
		}
	}
	return found
}

// Options returns the naming options the bundle was built with.
func (b *Bundle) Options() Options {
	return b.opts
}

// Len returns the number of files.
func (b *Bundle) Len() int {
	return len(b.files)
}

// Files returns the files in bundle order. The slice is a copy; contents are
// shared.
func (b *Bundle) Files() []File {
	out := make([]File, len(b.files))
	copy(out, b.files)
	return out
}

// Paths returns the file paths in bundle order.
func (b *Bundle) Paths() []string {
	out := make([]string, len(b.files))
	for i, f := range b.files {
		out[i] = f.Path
	}
	return out
}

// File looks up a file by normalized path.
func (b *Bundle) File(p string) (File, bool) {
	i, ok := b.index[NormalizePath(p)]
	if !ok {
		return File{}, false
	}
	return b.files[i], true
}

// EntryPath is the path of the entry document, or "" when the bundle has none.
func (b *Bundle) EntryPath() string {
	return b.entryPath
}

// HasEntry reports whether an entry document was found.
func (b *Bundle) HasEntry() bool {
	return b.entryPath != ""
}

// ConfigPath is the path of the configuration script, or "".
func (b *Bundle) ConfigPath() string {
	return b.configPath
}

// EntryMarkup returns the entry document text.
func (b *Bundle) EntryMarkup() (string, bool) {
	if b.entryPath == "" {
		return "", false
	}
	f, _ := b.File(b.entryPath)
	return string(f.Content), true
}

// ConfigText returns the configuration script text.
func (b *Bundle) ConfigText() (string, bool) {
	if b.configPath == "" {
		return "", false
	}
	f, _ := b.File(b.configPath)
	return string(f.Content), true
}

// WithFile returns a new bundle in which p holds content. Every other file is
// shared with b; b itself is not modified.
func (b *Bundle) WithFile(p string, content []byte) *Bundle {
	files := make([]File, len(b.files), len(b.files)+1)
	copy(files, b.files)
	files = append(files, File{Path: p, Content: content})
	return New(files, WithEntryName(b.opts.EntryName), WithConfigName(b.opts.ConfigName))
}
