package bundle

import (
	"path"
	"strconv"
	"strings"
)

// FlatName pairs a bundle path with the name it gets once the bundle is
// flattened into a single directory.
type FlatName struct {
	Path string
	Name string
}

// FlatNames returns the flattened name of every file in bundle order. The
// first file with a given basename keeps it; later files colliding with an
// already used name (case-insensitively) get "-2", "-3", ... inserted before the
// extension.
func (b *Bundle) FlatNames() []FlatName {
	b.flatOnce.Do(b.computeFlatNames)
	out := make([]FlatName, len(b.flat))
	copy(out, b.flat)
	return out
}

// FlatName returns the flattened name for path p.
func (b *Bundle) FlatName(p string) (string, bool) {
	b.flatOnce.Do(b.computeFlatNames)
	i, ok := b.index[NormalizePath(p)]
	if !ok {
		return "", false
	}
	return b.flat[i].Name, true
}

// ByFlatName looks a file up by its flattened name.
func (b *Bundle) ByFlatName(name string) (File, bool) {
	b.flatOnce.Do(b.computeFlatNames)
	i, ok := b.flatIdx[name]
	if !ok {
		return File{}, false
	}
	return b.files[i], true
}

func (b *Bundle) computeFlatNames() {
	b.flat = make([]FlatName, len(b.files))
	b.flatIdx = make(map[string]int, len(b.files))
	taken := make(map[string]bool, len(b.files))
	for i, f := range b.files {
		name := UniqueName(path.Base(f.Path), taken)
		b.flat[i] = FlatName{Path: f.Path, Name: name}
		b.flatIdx[name] = i
	}
}

// UniqueName returns name, or name with a numeric suffix, such that the
// result is not yet in taken. The result is recorded in taken. Comparison is
// case-insensitive so archives extract cleanly on case-insensitive filesystems.
func UniqueName(name string, taken map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = stem + "-" + strconv.Itoa(n) + ext
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
