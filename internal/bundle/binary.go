package bundle

import (
	"bytes"
	"path"
	"strings"
)

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".avif": true, ".tif": true, ".tiff": true,
	".zip": true, ".gz": true, ".pdf": true, ".swf": true,
	".mp3": true, ".mp4": true, ".mov": true, ".webm": true, ".ogg": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
}

// IsText reports whether a file should be treated as editable text. Known
// binary extensions are never text; everything else is sniffed.
func IsText(p string, content []byte) bool {
	if binaryExtensions[strings.ToLower(path.Ext(p))] {
		return false
	}
	return !IsBinary(content)
}

// IsText reports whether f holds editable text.
func (f File) IsText() bool {
	return IsText(f.Path, f.Content)
}

// ContentType returns the MIME type served for f. Unknown extensions whose
// content sniffs as text are served as plain text.
func (f File) ContentType() string {
	ct := ContentType(f.Path)
	if ct == octetStream && f.IsText() {
		return "text/plain; charset=utf-8"
	}
	return ct
}

// IsBinary applies a null byte and non-printable ratio heuristic to the first
// 512 bytes of content.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content
	if len(sample) > 512 {
		sample = sample[:512]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}

	nonPrintable := 0
	for _, c := range sample {
		if c < 32 && c != '\t' && c != '\n' && c != '\r' && c != '\f' {
			nonPrintable++
		}
	}
	// UTF-8 multi-byte sequences are fine; only control characters count
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}
