package preview

import (
	"regexp"
	"strings"

	"github.com/bannerbuildr/internal/assets"
	"github.com/bannerbuildr/internal/bundle"
)

// Placeholder is the document shown for a bundle without an entry document.
const Placeholder = "<html><body>Error: index.html not found in template.</body></html>"

var (
	headOpenPattern   = regexp.MustCompile(`(?i)<head\b[^>]*>`)
	headClosePattern  = regexp.MustCompile(`(?i)</head\s*>`)
	bodyClosePattern  = regexp.MustCompile(`(?i)</body\s*>`)
	scriptOpenPattern = regexp.MustCompile(`(?i)<script\b`)
)

// Assemble builds the renderable document: entry references rewritten to
// locators, unreferenced stylesheets linked before </head>, the configuration
// script made the first script, and other unreferenced scripts appended
// before </body>.
func Assemble(entry string, b *bundle.Bundle, res *assets.Resolution) string {
	doc, _ := assets.RewriteAttributes(entry, res.Refs)

	var sheets, scripts []string
	configLoc := ""
	for _, p := range b.Paths() {
		loc, ok := res.Locator(p)
		if !ok || p == b.EntryPath() {
			continue
		}
		switch {
		case p == b.ConfigPath():
			configLoc = loc
		case bundle.Classify(p) == bundle.ClassStylesheet:
			if !referenced(doc, loc) {
				sheets = append(sheets, loc)
			}
		case bundle.Classify(p) == bundle.ClassScript:
			if !referenced(doc, loc) {
				scripts = append(scripts, loc)
			}
		}
	}

	if len(sheets) > 0 {
		var sb strings.Builder
		for _, loc := range sheets {
			sb.WriteString(`<link rel="stylesheet" href="` + loc + `">`)
		}
		doc = insertBefore(doc, headClosePattern, sb.String(), false)
	}

	if configLoc != "" {
		if referenced(doc, configLoc) {
			doc = hoistScript(doc, configLoc)
		} else {
			doc = insertConfig(doc, scriptTag(configLoc))
		}
	}

	if len(scripts) > 0 {
		var sb strings.Builder
		for _, loc := range scripts {
			sb.WriteString(scriptTag(loc))
		}
		doc = insertBefore(doc, bodyClosePattern, sb.String(), true)
	}
	return doc
}

func scriptTag(loc string) string {
	return `<script src="` + loc + `"></script>`
}

func referenced(doc, loc string) bool {
	return strings.Contains(doc, `"`+loc+`"`) || strings.Contains(doc, `'`+loc+`'`)
}

// insertBefore inserts snippet before the first (or last) match of marker,
// appending when the marker is missing.
func insertBefore(doc string, marker *regexp.Regexp, snippet string, last bool) string {
	locs := marker.FindAllStringIndex(doc, -1)
	if len(locs) == 0 {
		if last {
			return doc + snippet
		}
		return snippet + doc
	}
	at := locs[0][0]
	if last {
		at = locs[len(locs)-1][0]
	}
	return doc[:at] + snippet + doc[at:]
}

func insertConfig(doc, tag string) string {
	if loc := headOpenPattern.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + tag + doc[loc[1]:]
	}
	if loc := scriptOpenPattern.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + tag + doc[loc[0]:]
	}
	return tag + doc
}

// hoistScript moves the script element loading loc ahead of every other
// script element.
func hoistScript(doc, loc string) string {
	pattern := regexp.MustCompile(`(?is)<script\b[^>]*\bsrc\s*=\s*["']` + regexp.QuoteMeta(loc) + `["'][^>]*>\s*</script\s*>`)
	tag := pattern.FindStringIndex(doc)
	if tag == nil {
		return doc
	}
	first := scriptOpenPattern.FindStringIndex(doc)
	if first == nil || first[0] >= tag[0] {
		return doc
	}
	element := doc[tag[0]:tag[1]]
	without := doc[:tag[0]] + doc[tag[1]:]
	return without[:first[0]] + element + without[first[0]:]
}
