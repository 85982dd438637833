// Package llm extracts and repairs JSON from free-form model output and
// wraps model clients with retries.
package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what RepairJSON had to do to make a payload parse.
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	CommentsLost     int           `json:"comments_lost"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

var (
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)(\s*:)`)
	singleQuotedPattern  = regexp.MustCompile(`'([^'\\]*(?:\\.[^'\\]*)*)'`)
)

type repairStrategy struct {
	name  string
	apply func(string, *RepairStats) string
}

// Strategies run in order; each one is recorded only when it changed the
// payload. The jsonrepair library is the last resort.
var repairStrategies = []repairStrategy{
	{"comments_removed", func(s string, st *RepairStats) string {
		out, n := stripComments(s)
		st.CommentsLost += n
		return out
	}},
	{"trailing_commas", func(s string, _ *RepairStats) string {
		return trailingCommaPattern.ReplaceAllString(s, "$1")
	}},
	{"key_quotes", func(s string, _ *RepairStats) string {
		return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
	}},
	{"single_quotes", func(s string, _ *RepairStats) string {
		if strings.Contains(s, `"`) {
			return s
		}
		return singleQuotedPattern.ReplaceAllStringFunc(s, func(m string) string {
			inner := m[1 : len(m)-1]
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			quoted, _ := json.Marshal(inner)
			return string(quoted)
		})
	}},
	{"completion", func(s string, _ *RepairStats) string {
		return completeJSON(s)
	}},
}

func validJSON(s string) bool {
	var v interface{}
	return json.Unmarshal([]byte(s), &v) == nil
}

// RepairJSON returns raw unchanged when it already parses; otherwise it
// applies the repair strategies in turn and stops at the first one that yields
// valid JSON.
func RepairJSON(raw string) (string, RepairStats, error) {
	startTime := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}
	finish := func(s string) RepairStats {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(startTime)
		return stats
	}

	if validJSON(raw) {
		return raw, finish(raw), nil
	}
	stats.WasRepaired = true

	repaired := raw
	for _, strategy := range repairStrategies {
		next := strategy.apply(repaired, &stats)
		if next == repaired {
			continue
		}
		repaired = next
		stats.RepairStrategies = append(stats.RepairStrategies, strategy.name)
		stats.ErrorsFixed++
		if validJSON(repaired) {
			return repaired, finish(repaired), nil
		}
	}

	if fixed, err := jsonrepair.JSONRepair(repaired); err == nil && validJSON(fixed) {
		stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
		stats.ErrorsFixed++
		return fixed, finish(fixed), nil
	}

	return repaired, finish(repaired), fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
}

// stripComments removes // and /* */ comments that are outside string
// literals.
func stripComments(s string) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	removed := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			removed++
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			removed++
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), removed
}

// completeJSON closes an unterminated string and any open objects or arrays
// in LIFO order.
func completeJSON(s string) string {
	s = strings.TrimSpace(s)
	var stack []byte
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	s = strings.TrimRight(s, ", \t\n")
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
