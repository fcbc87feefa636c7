package chunk

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	backtickPascalPattern = regexp.MustCompile("`([A-Z][A-Za-z0-9_.]+)`")
	filePathTokenPattern  = regexp.MustCompile(`^[A-Za-z0-9_./-]+\.[a-z]{1,5}$`)
	relatedLinkPattern    = regexp.MustCompile(`\[.*?\]\(([^)]+)\)`)
)

// extractTags finds backtick-quoted PascalCase terms and file-path-shaped
// tokens, case-insensitively deduplicated, first-seen case preserved.
func extractTags(content string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(s string) {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			tags = append(tags, s)
		}
	}

	for _, m := range backtickPascalPattern.FindAllStringSubmatch(content, -1) {
		tag := m[1]
		if len(tag) > 2 && !strings.Contains(tag, "/") {
			add(tag)
		}
	}

	isDelim := func(r rune) bool {
		return unicode.IsSpace(r) || r == '`' || r == '\'' || r == '"'
	}
	for _, tok := range strings.FieldsFunc(content, isDelim) {
		if !filePathTokenPattern.MatchString(tok) {
			continue
		}
		if strings.Contains(tok, "/") || strings.Contains(tok, ".") {
			add(tok)
		}
	}

	sort.Strings(tags)
	return tags
}

// extractRelatedFiles finds Markdown links pointing at another .md file,
// strips any #fragment before checking the extension, and normalizes
// slashes, case-insensitively deduplicated.
func extractRelatedFiles(content string) []string {
	seen := make(map[string]bool)
	var files []string

	for _, m := range relatedLinkPattern.FindAllStringSubmatch(content, -1) {
		raw := m[1]
		if idx := strings.Index(raw, "#"); idx >= 0 {
			raw = raw[:idx]
		}
		if !strings.HasSuffix(strings.ToLower(raw), ".md") {
			continue
		}
		raw = normalizeSlashes(raw)
		if raw == "" {
			continue
		}
		key := strings.ToLower(raw)
		if !seen[key] {
			seen[key] = true
			files = append(files, raw)
		}
	}

	sort.Strings(files)
	return files
}
