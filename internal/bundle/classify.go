package bundle

import (
	"mime"
	"path"
	"strings"
)

// AssetClass groups bundle files by how a rendered document references them.
type AssetClass int

const (
	ClassUnknown AssetClass = iota
	ClassScript
	ClassStylesheet
	ClassImage
)

func (c AssetClass) String() string {
	switch c {
	case ClassScript:
		return "script"
	case ClassStylesheet:
		return "stylesheet"
	case ClassImage:
		return "image"
	default:
		return "unknown"
	}
}

var classByExt = map[string]AssetClass{
	".js":   ClassScript,
	".mjs":  ClassScript,
	".css":  ClassStylesheet,
	".png":  ClassImage,
	".jpg":  ClassImage,
	".jpeg": ClassImage,
	".gif":  ClassImage,
	".svg":  ClassImage,
	".webp": ClassImage,
	".bmp":  ClassImage,
	".ico":  ClassImage,
	".avif": ClassImage,
}

const octetStream = "application/octet-stream"

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".bmp":   "image/bmp",
	".ico":   "image/x-icon",
	".avif":  "image/avif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
}

// Classify maps a path to its asset class by extension.
func Classify(p string) AssetClass {
	return classByExt[strings.ToLower(path.Ext(p))]
}

// ContentType returns the MIME type served for p.
func ContentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return octetStream
}
