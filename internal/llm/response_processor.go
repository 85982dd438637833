package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bannerbuildr/internal/logging"
)

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON found in response")

// ProcessorResult describes how a raw model response was turned into JSON.
type ProcessorResult struct {
	RepairStats  RepairStats `json:"repair_stats"`
	OriginalJSON string      `json:"-"`
	RepairedJSON string      `json:"-"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ProcessResponse extracts the JSON payload from raw, repairs it if needed
// and unmarshals it into target.
func ProcessResponse(raw string, target interface{}, logger *logging.OperationLogger) (ProcessorResult, error) {
	result := ProcessorResult{OriginalJSON: raw}

	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		result.Error = ErrNoJSON.Error()
		logger.Log("No JSON found in LLM response: %s", truncateForLog(raw, 200))
		return result, ErrNoJSON
	}

	repaired, stats, err := RepairJSON(jsonStr)
	result.RepairStats = stats
	result.RepairedJSON = repaired
	if stats.WasRepaired {
		logger.Log("JSON repair applied: %s (%d -> %d bytes)",
			strings.Join(stats.RepairStrategies, ", "), stats.OriginalBytes, stats.RepairedBytes)
	}
	if err != nil {
		result.Error = fmt.Sprintf("JSON repair failed: %v", err)
		logger.Log("JSON repair failed: %v; payload: %s", err, truncateForLog(jsonStr, 500))
		return result, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		logger.Log("JSON parsing failed after repair: %v", err)
		return result, fmt.Errorf("failed to decode model response: %w", err)
	}

	result.Success = true
	return result, nil
}

// ExtractJSON pulls the JSON payload out of a response that may wrap it in
// prose or a fenced code block. Braces inside string literals are ignored
// when matching. An unterminated payload is returned from its start so it can
// still be repaired.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if fenced := fencedBlock(raw); fenced != "" {
		raw = fenced
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		if end := matchingClose(raw, 0); end > 0 {
			return raw[:end+1]
		}
		return raw
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	if end := matchingClose(raw, start); end > 0 {
		return raw[start : end+1]
	}
	return raw[start:]
}

func fencedBlock(raw string) string {
	if !strings.Contains(raw, "```") {
		return ""
	}
	var lines []string
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inBlock {
				break
			}
			inBlock = true
			continue
		}
		if inBlock {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func matchingClose(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
