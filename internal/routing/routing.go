// Package routing parses the management Markdown file's fenced YAML block
// mapping code-path globs to knowledge-base domains, and answers domain
// queries against it. No general YAML library is used: the accepted format
// is a narrow, line-oriented subset, so a small regex scanner suffices.
package routing

import (
	"regexp"
	"strings"

	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// domainLine matches "  <domain>: ['<path>', '<path>', ...]" lines inside
// the fenced yaml block.
var domainLine = regexp.MustCompile(`^\s+(\w+):\s*\[([^\]]+)\]`)

// singleQuoted extracts each '...' item from a bracketed list body.
var singleQuoted = regexp.MustCompile(`'([^']*)'`)

// fencedYAMLBlock finds the first ```yaml or ```yml fenced block and
// captures its body.
var fencedYAMLBlock = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)```")

// entry is one declared domain and its code-path glob patterns, in
// declaration order.
type entry struct {
	domain   string
	patterns []string
}

// Map is an ordered list of (domain, patterns) pairs parsed from a
// management file's fenced YAML block.
type Map struct {
	entries []entry
}

// Parse extracts the RoutingMap from management file content. A missing
// fenced yaml/yml block yields an empty, valid Map (no error) — the
// feature is optional, per the management file's design.
func Parse(content string) (*Map, error) {
	m := fencedYAMLBlock.FindStringSubmatch(content)
	if m == nil {
		return &Map{}, nil
	}

	rm := &Map{}
	for _, line := range strings.Split(m[1], "\n") {
		dm := domainLine.FindStringSubmatch(line)
		if dm == nil {
			continue
		}
		domain := dm[1]
		var patterns []string
		for _, q := range singleQuoted.FindAllStringSubmatch(dm[2], -1) {
			patterns = append(patterns, q[1])
		}
		rm.entries = append(rm.entries, entry{domain: domain, patterns: patterns})
	}
	return rm, nil
}

// ParseFile reads and parses a management file. Any read error, a missing
// file included, is returned as an IOError; malformed content never errors, since Parse tolerates any
// non-matching lines by skipping them (ParseError is reserved for callers
// that choose to treat "zero domains found" as suspicious).
func ParseFile(read func() (string, error)) (*Map, error) {
	content, err := read()
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "read management file", err)
	}
	return Parse(content)
}

// DomainFromSourcePath implements domain_from_source_path: normalize
// slashes; if the path begins (case-insensitively) with "domains/" and has
// at least two segments, return the second segment; else "root".
func DomainFromSourcePath(p string) string {
	norm := normalizeSlashes(p)
	lower := strings.ToLower(norm)
	if !strings.HasPrefix(lower, "domains/") {
		return "root"
	}
	segments := strings.Split(norm, "/")
	if len(segments) < 2 || segments[1] == "" {
		return "root"
	}
	return segments[1]
}

// DomainsForCodePath implements domains_for_code_path: returns every
// domain whose pattern matches p, in declaration order, each domain at
// most once (first matching pattern wins).
func (m *Map) DomainsForCodePath(p string) []string {
	if m == nil {
		return nil
	}
	normPath := normalizeSlashes(p)
	lowerPath := strings.ToLower(normPath)

	seen := make(map[string]bool)
	var domains []string
	for _, e := range m.entries {
		if seen[e.domain] {
			continue
		}
		for _, pattern := range e.patterns {
			if patternMatches(normalizeSlashes(pattern), lowerPath) {
				seen[e.domain] = true
				domains = append(domains, e.domain)
				break
			}
		}
	}
	return domains
}

// patternMatches implements the ** split / substring matching rule. pattern
// is already slash-normalized; lowerPath is the already-lowercased,
// slash-normalized code path.
func patternMatches(pattern, lowerPath string) bool {
	lowerPattern := strings.ToLower(pattern)

	if idx := strings.Index(lowerPattern, "**"); idx >= 0 {
		prefix := strings.TrimSuffix(lowerPattern[:idx], "/")
		suffix := strings.TrimSpace(lowerPattern[idx+2:])

		if prefix != "" && !strings.Contains(lowerPath, prefix) {
			return false
		}
		if suffix != "" && !strings.Contains(lowerPath, suffix) {
			return false
		}
		return true
	}

	trimmed := strings.TrimSuffix(lowerPattern, "/")
	return strings.Contains(lowerPath, trimmed)
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
