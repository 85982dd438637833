package preview

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/bannerbuildr/pkg/models"
)

// FrameSandbox is the sandbox applied to preview iframes.
const FrameSandbox = "allow-scripts allow-same-origin"

var titlePolicy = bluemonday.StrictPolicy()

// FrameOptions describes the page around a preview iframe.
type FrameOptions struct {
	Title      string
	Dimensions models.Dimensions
}

// Frame wraps markup into a page that displays it in a sandboxed iframe.
func Frame(markup string, opts FrameOptions) string {
	dims := opts.Dimensions.WithDefaults(models.Dimensions{Width: 300, Height: 250})
	title := strings.TrimSpace(titlePolicy.Sanitize(opts.Title))
	if title == "" {
		title = "Preview"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<style>html,body{margin:0;padding:0;background:#f4f4f4}iframe{border:0;display:block;margin:16px auto;background:#fff}</style>\n")
	sb.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&sb, "<iframe sandbox=%q width=\"%d\" height=\"%d\" srcdoc=\"%s\"></iframe>\n",
		FrameSandbox, dims.Width, dims.Height, html.EscapeString(markup))
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
