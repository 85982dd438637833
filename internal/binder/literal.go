package binder

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/bannerbuildr/pkg/models"
)

// LiteralKind is the kind of a JavaScript literal found in a script.
type LiteralKind int

const (
	KindString LiteralKind = iota
	KindNumber
	KindBool
	KindNull
)

const (
	stringLiteral = `"(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*'|` + "`(?:[^`\\\\$]|\\\\.|\\$[^{`])*\\$?`"
	numberLiteral = `-?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`
	literal       = `(` + stringLiteral + `|` + numberLiteral + `|true|false|null)`
	literalTail   = `(\s*(?:/\*[^*\n]*\*/\s*)?(?:[;,)}\]]|//[^\n]*$|$))`

	// index is one bracketed subscript such as [0] or ["Feed"].
	index = `\s*\[[^\]\n]*\]`
	// member is a chain of a.b[0]. segments preceding a property name.
	member = `(?:[\w$]+(?:` + index + `)*\s*\.\s*)*`
	// propertyLead is what may precede a property of an object literal: the
	// opening brace or a separating comma, then blanks and comments.
	propertyLead = `[{,]\s*(?:(?://[^\n]*\n|/\*[^*]*\*/)\s*)*`
)

// assignmentPatterns builds the patterns matching literal assignments of
// name. Group 1 is everything before the literal, group 2 the literal and
// group 3 what follows it.
func assignmentPatterns(name string) []*regexp.Regexp {
	q := regexp.QuoteMeta(name)
	quoted := `["'` + "`" + `]` + q + `["'` + "`" + `]`
	return []*regexp.Regexp{
		// var|let|const name = lit, name = lit, a.b[0].name = lit
		regexp.MustCompile(`(?m)((?:^|[^\w$.\]])` + member + q + `\s*=\s*)` + literal + literalTail),
		// a["name"] = lit, a[0]["name"] = lit
		regexp.MustCompile(`(?m)((?:^|[^\w$.\]])` + member + `[\w$]*(?:` + index + `)*\s*\[\s*` + quoted + `\s*\]\s*=\s*)` + literal + literalTail),
		// {name: lit}, {"name": lit}; a ternary branch is not a property
		regexp.MustCompile(`(?m)(` + propertyLead + `(?:` + q + `|"` + q + `"|'` + q + `')\s*:\s*)` + literal + literalTail),
	}
}

// KindOf classifies a literal as it appears in source text.
func KindOf(lit string) LiteralKind {
	switch {
	case lit == "true" || lit == "false":
		return KindBool
	case lit == "null":
		return KindNull
	case strings.HasPrefix(lit, `"`) || strings.HasPrefix(lit, `'`) || strings.HasPrefix(lit, "`"):
		return KindString
	default:
		return KindNumber
	}
}

// RenderLiteral renders value as a JavaScript literal. Strings are JSON
// quoted. A string replacing a numeric or boolean default is rendered bare
// when it parses as that kind.
func RenderLiteral(value any, existing LiteralKind) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case bool:
		return strconv.FormatBool(v), true
	case int, int64, float32, float64:
		return models.ScalarString(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		switch existing {
		case KindNumber:
			if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64), true
			}
		case KindBool:
			if b, err := strconv.ParseBool(trimmed); err == nil && (strings.EqualFold(trimmed, "true") || strings.EqualFold(trimmed, "false")) {
				return strconv.FormatBool(b), true
			}
		}
		return quoteString(v), true
	default:
		return quoteString(models.ScalarString(v)), true
	}
}

func quoteString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(out)
}

// Substitute replaces every literal assignment of name in script with value
// and returns the new script and the number of replacements.
func Substitute(script, name string, value any) (string, int) {
	if name == "" || value == nil {
		return script, 0
	}
	total := 0
	for _, re := range assignmentPatterns(name) {
		var n int
		script, n = replaceLiterals(re, script, value)
		total += n
	}
	return script, total
}

func replaceLiterals(re *regexp.Regexp, script string, value any) (string, int) {
	matches := re.FindAllStringSubmatchIndex(script, -1)
	if len(matches) == 0 {
		return script, 0
	}
	var b strings.Builder
	b.Grow(len(script))
	last, count := 0, 0
	for _, m := range matches {
		litStart, litEnd := m[4], m[5]
		rendered, ok := RenderLiteral(value, KindOf(script[litStart:litEnd]))
		if !ok {
			continue
		}
		b.WriteString(script[last:litStart])
		b.WriteString(rendered)
		last = litEnd
		count++
	}
	b.WriteString(script[last:])
	return b.String(), count
}
