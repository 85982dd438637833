package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// MaxMemberSize caps the uncompressed size of a single archive member.
const MaxMemberSize = 64 << 20

// ErrMemberTooLarge is returned when an archive member exceeds MaxMemberSize.
var ErrMemberTooLarge = errors.New("archive member too large")

// IsResourceFork reports whether an archive member belongs to the macOS
// resource-fork convention (__MACOSX/ folders and AppleDouble "._" files).
func IsResourceFork(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, "._") || base == ".DS_Store"
}

// ReadZip extracts every regular, non resource-fork member of a zip archive
// in archive order.
func ReadZip(data []byte) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	files := make([]File, 0, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || IsResourceFork(zf.Name) {
			continue
		}
		if zf.UncompressedSize64 > MaxMemberSize {
			return nil, fmt.Errorf("%s: %w", zf.Name, ErrMemberTooLarge)
		}
		content, err := readMember(zf)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", zf.Name, err)
		}
		files = append(files, File{Path: zf.Name, Content: content})
	}
	return files, nil
}

func readMember(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, MaxMemberSize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > MaxMemberSize {
		return nil, ErrMemberTooLarge
	}
	return content, nil
}

// FromZip ingests a template archive.
func FromZip(data []byte, opts ...Option) (*Bundle, error) {
	files, err := ReadZip(data)
	if err != nil {
		return nil, err
	}
	return New(files, opts...), nil
}
