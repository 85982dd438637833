package assets

import (
	"path"
	"regexp"
	"strings"
)

var (
	attrRefPattern = regexp.MustCompile(`(?i)(\b(?:src|href)\s*=\s*)(?:"([^"]*)"|'([^']*)')`)
	cssURLPattern  = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^"')\s]+))\s*\)`)
)

// Refs maps reference names to locators.
type Refs map[string]string

func trimRefPrefix(v string) string {
	switch {
	case strings.HasPrefix(v, "./"):
		return v[2:]
	case strings.HasPrefix(v, "/"):
		return v[1:]
	}
	return v
}

// Lookup resolves an attribute value that may carry one leading "./" or "/".
func (r Refs) Lookup(value string) (string, bool) {
	if loc, ok := r[value]; ok {
		return loc, true
	}
	loc, ok := r[trimRefPrefix(value)]
	return loc, ok
}

// RewriteAttributes replaces src= and href= values that name a known file
// with its locator. The whole quoted value must match; values that are
// already locators are left alone, so rewriting twice changes nothing.
func RewriteAttributes(text string, refs Refs) (string, int) {
	if len(refs) == 0 {
		return text, 0
	}
	count := 0
	out := attrRefPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := attrRefPattern.FindStringSubmatch(m)
		value, quote := sub[2], `"`
		if strings.HasPrefix(m[len(sub[1]):], "'") {
			value, quote = sub[3], `'`
		}
		loc, ok := refs.Lookup(value)
		if !ok {
			return m
		}
		count++
		return sub[1] + quote + loc + quote
	})
	return out, count
}

// RewriteCSSURLs replaces url(...) references of a stylesheet at cssPath.
// References are resolved relative to the stylesheet's directory and looked
// up by bundle path.
func RewriteCSSURLs(css, cssPath string, byPath Refs) (string, int) {
	if len(byPath) == 0 {
		return css, 0
	}
	dir := path.Dir(cssPath)
	count := 0
	out := cssURLPattern.ReplaceAllStringFunc(css, func(m string) string {
		sub := cssURLPattern.FindStringSubmatch(m)
		value := sub[1] + sub[2] + sub[3]
		if value == "" || strings.Contains(value, ":") || strings.HasPrefix(value, "#") {
			return m
		}
		ref := value
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		var target string
		if strings.HasPrefix(ref, "/") {
			target = path.Clean(strings.TrimPrefix(ref, "/"))
		} else {
			target = path.Join(dir, ref)
		}
		loc, ok := byPath[target]
		if !ok {
			return m
		}
		count++
		return `url("` + loc + `")`
	})
	return out, count
}
