package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what was done to salvage a model response.
type RepairStats struct {
	OriginalBytes    int      `json:"original_bytes"`
	RepairedBytes    int      `json:"repaired_bytes"`
	RepairStrategies []string `json:"repair_strategies"`
	WasRepaired      bool     `json:"was_repaired"`
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON pulls the JSON object out of a raw completion. Models wrap
// output in markdown fences or prose more often than not.
func ExtractJSON(response string) string {
	trimmed := strings.TrimSpace(response)

	if idx := strings.Index(trimmed, "```json"); idx != -1 {
		trimmed = trimmed[idx+len("```json"):]
		if end := strings.Index(trimmed, "```"); end != -1 {
			trimmed = trimmed[:end]
		}
		trimmed = strings.TrimSpace(trimmed)
	} else if idx := strings.Index(trimmed, "```"); idx != -1 {
		trimmed = trimmed[idx+3:]
		if end := strings.Index(trimmed, "```"); end != -1 {
			trimmed = trimmed[:end]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end == -1 || end < start {
		// Truncated object; return from the opening brace and let repair
		// close it.
		return trimmed[start:]
	}
	return trimmed[start : end+1]
}

// Repair attempts to turn a malformed JSON string into a parseable one.
// Cheap fixes run first; the jsonrepair library is the sophisticated
// fallback. The repaired string is only returned when it actually parses.
func Repair(raw string) (string, RepairStats, bool) {
	stats := RepairStats{OriginalBytes: len(raw)}

	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		stats.RepairedBytes = len(raw)
		return raw, stats, true
	}

	stats.WasRepaired = true
	repaired := raw

	if trailingCommaRe.MatchString(repaired) {
		repaired = trailingCommaRe.ReplaceAllString(repaired, "$1")
		stats.RepairStrategies = append(stats.RepairStrategies, "trailing_commas")
	}

	if closed := closeUnbalanced(repaired); closed != repaired {
		repaired = closed
		stats.RepairStrategies = append(stats.RepairStrategies, "completion")
	}

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		fixed, err := jsonrepair.JSONRepair(repaired)
		if err == nil {
			repaired = fixed
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
		}
	}

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		stats.RepairedBytes = len(repaired)
		return repaired, stats, false
	}

	stats.RepairedBytes = len(repaired)
	return repaired, stats, true
}

// closeUnbalanced appends the closing braces/brackets a truncated response is
// missing, in last-opened-first-closed order. String state is tracked so
// braces inside values don't count.
func closeUnbalanced(s string) string {
	var stack []rune
	inString := false
	escaped := false

	for _, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
