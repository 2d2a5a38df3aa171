package converter

import (
	"regexp"
	"strings"
)

// A fence line is three or more backticks with an optional language tag.
var fenceLine = regexp.MustCompile("(?m)^`{3,}[A-Za-z0-9_+-]*[ \t]*$\n?")

// Leading lines with these prefixes are prose, not code.
var leadingProse = []string{"Here", "This", "The Python", "I", "Okay"}

// Once code has started, a line with one of these prefixes ends it.
var trailingProse = []string{"This code", "The above", "This Python"}

// CleanOutput strips Markdown fences and surrounding prose from a model
// response. Applying it to already-clean code returns the code unchanged.
func CleanOutput(text string) string {
	code := strings.TrimSpace(text)
	code = stripFences(code)

	lines := strings.Split(code, "\n")
	clean := make([]string, 0, len(lines))
	started := false

	for _, line := range lines {
		if !started {
			if hasAnyPrefix(line, leadingProse) || strings.TrimSpace(line) == "" {
				continue
			}
			started = true
		} else if hasAnyPrefix(line, trailingProse) {
			break
		}
		clean = append(clean, line)
	}

	if len(clean) == 0 {
		return strings.TrimSpace(code)
	}

	return strings.TrimSpace(strings.Join(clean, "\n"))
}

// stripFences removes whole fence lines and a fence opener glued to code
// on the same line ("```python import os").
func stripFences(code string) string {
	code = fenceLine.ReplaceAllString(code, "")

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			rest := strings.TrimLeft(line, "`")
			rest = strings.TrimPrefix(rest, "python")
			lines[i] = strings.TrimLeft(rest, " \t")
		}
	}

	return strings.Join(lines, "\n")
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
