package agent

import (
	"regexp"
	"strings"
)

// Keyword tables and extraction helpers shared by the planner's task
// normalization and the executor's argument resolution. Every extractor has a
// documented fallback so resolution never fails outright.

var toolKeywords = map[string][]string{
	"file": {"file", "create", "write"},
	"bash": {"run", "execute"},
	"edit": {"edit", "modify"},
	"grep": {"search", "grep", "find"},
	"web":  {"web", "fetch", "price"},
	"git":  {"git", "commit"},
}

// toolInferenceOrder keeps inference deterministic.
var toolInferenceOrder = []string{"file", "bash", "edit", "grep", "web", "git"}

var multiStepMarkers = []string{
	"then", "after", "next", "finally", "and then",
	"first", "second", "third", "lastly",
}

var anaphoraMarkers = []string{
	"it", "result", "output", "the file", "back", "that file",
}

var (
	backtickRe       = regexp.MustCompile("`([^`]+)`")
	commandPhraseRe  = regexp.MustCompile(`(?i)(?:run|execute)\s+(?:the\s+command\s+)?(.+?)(?:\.|$)`)
	structuredPathRe = regexp.MustCompile(`[A-Za-z0-9_~][A-Za-z0-9_\-./]*/[A-Za-z0-9_\-.]+\.[A-Za-z0-9]{1,8}`)
	quotedFileRe     = regexp.MustCompile(`["']([^"']+\.[A-Za-z0-9]{1,8})["']`)
	createFileRe     = regexp.MustCompile(`(?i)(?:create|write|make)\s+(?:a\s+)?(?:file\s+)?(?:called\s+|named\s+)?([\w\-./]+\.[A-Za-z0-9]{1,8})`)
	extensionRe      = regexp.MustCompile(`\b[\w\-]+\.(?:txt|md|go|py|js|ts|json|yaml|yml|sh|csv|html|css|conf|cfg|log)\b`)
	quotedRe         = regexp.MustCompile(`["']([^"']+)["']`)
	wordRe           = regexp.MustCompile(`[A-Za-z0-9_\-]{3,}`)
)

// inferTools derives the minimal tool set from description keywords.
// The "file" keyword group maps to write_file.
func inferTools(description string) []string {
	lower := strings.ToLower(description)
	words := tokenSet(lower)

	var out []string
	seen := make(map[string]bool)
	for _, group := range toolInferenceOrder {
		for _, kw := range toolKeywords[group] {
			if !words[kw] {
				continue
			}
			name := group
			if group == "file" {
				name = "write_file"
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			break
		}
	}
	return out
}

func hasToolKeywords(description string) bool {
	words := tokenSet(strings.ToLower(description))
	for _, kws := range toolKeywords {
		for _, kw := range kws {
			if words[kw] {
				return true
			}
		}
	}
	return false
}

func hasMultiStepMarkers(description string) bool {
	lower := " " + strings.ToLower(description) + " "
	for _, m := range multiStepMarkers {
		if strings.Contains(lower, " "+m+" ") || strings.Contains(lower, ","+m+" ") {
			return true
		}
	}
	return false
}

// hasAnaphora reports whether the description refers back to earlier work.
func hasAnaphora(description string) bool {
	lower := strings.ToLower(description)
	words := tokenSet(lower)
	for _, m := range anaphoraMarkers {
		if strings.Contains(m, " ") {
			if strings.Contains(lower, m) {
				return true
			}
		} else if words[m] {
			return true
		}
	}
	return false
}

// classifyComplexity derives the logging/budgeting hint for a prompt.
func classifyComplexity(prompt string) Complexity {
	words := len(strings.Fields(prompt))
	toolKW := hasToolKeywords(prompt)
	if hasMultiStepMarkers(prompt) || (toolKW && words > 20) {
		return ComplexityComplex
	}
	if toolKW || words > 15 {
		return ComplexityModerate
	}
	return ComplexitySimple
}

// extractCommand pulls a shell command out of a description: backtick-quoted
// fragment first, then the phrase following run/execute. Empty when neither
// matches.
func extractCommand(description string) string {
	if m := backtickRe.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := commandPhraseRe.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(strings.Trim(m[1], `"'`))
	}
	return ""
}

// extractFilePath applies the documented precedence: structured path →
// quoted filename → create/write/make phrase → extension-bearing token →
// "file.txt".
func extractFilePath(description string) string {
	if m := structuredPathRe.FindString(description); m != "" {
		return m
	}
	if m := quotedFileRe.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	if m := createFileRe.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	if m := extensionRe.FindString(description); m != "" {
		return m
	}
	return "file.txt"
}

// extractQuoted returns the first quoted string in the description.
func extractQuoted(description string) string {
	if m := quotedRe.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return ""
}

// extractPattern resolves a search pattern: first quoted string → first
// word of at least 3 characters → match-anything.
func extractPattern(description string) string {
	if q := extractQuoted(description); q != "" {
		return q
	}
	for _, w := range wordRe.FindAllString(description, -1) {
		lower := strings.ToLower(w)
		if lower == "search" || lower == "grep" || lower == "find" || lower == "for" || lower == "the" {
			continue
		}
		return w
	}
	return ".*"
}

// mentionsFile reports whether the description carries an extension-bearing
// token (used for side-effect tracking).
func mentionsFile(description string) string {
	return extensionRe.FindString(description)
}

func tokenSet(lower string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	}) {
		out[w] = true
	}
	return out
}
