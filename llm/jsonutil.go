package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns for pulling JSON out of model responses.
var (
	// fencedObjectPattern matches a JSON object inside a markdown code block.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObjectPattern matches any JSON object (greedy fallback).
	bareObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// DecodeObject unmarshals a JSON object from raw model output into v.
// It parses strictly first; only on failure does it run one bounded
// repair pass (markdown fences, line comments outside strings, trailing
// commas). The returned bool reports whether repair was needed, so
// callers can record a parse warning.
func DecodeObject(content string, v any) (bool, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return false, nil
	}

	repaired := ExtractJSON(content)
	if repaired == "" {
		return true, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return true, fmt.Errorf("parse repaired JSON: %w", err)
	}
	return true, nil
}

// ExtractJSON extracts and cleans a JSON object from a model response.
// It handles markdown code blocks, JavaScript-style comments, and
// trailing commas. Returns "" when no object is present.
func ExtractJSON(content string) string {
	raw := extractRawObject(content)
	if raw == "" {
		return ""
	}
	return cleanJSON(raw)
}

func extractRawObject(content string) string {
	if matches := fencedObjectPattern.FindStringSubmatch(content); len(matches) > 1 {
		return matches[1]
	}
	if match := bareObjectPattern.FindString(content); match != "" {
		return match
	}
	return ""
}

// cleanJSON removes JavaScript-style comments and trailing commas.
// Models commonly produce both.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a line unless it sits inside
// a JSON string value (URLs must survive).
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
