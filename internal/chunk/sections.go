package chunk

import (
	"regexp"
	"strings"
)

// headingPattern matches ATX headings: 1-6 '#' characters followed by a space.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// section is a heading-scoped span of the document: the heading line
// (if any) plus every line up to (not including) the next heading of level
// <= its own.
type section struct {
	headingPath string
	content     string
}

// headingEntry is one (level, text) pair on the heading stack.
type headingEntry struct {
	level int
	text  string
}

// splitSections walks the document maintaining a stack of (level, text)
// heading entries. On each heading, entries at the new heading's level or
// deeper are popped before it is pushed, and the breadcrumb is the
// " > "-joined stack texts (a heading with blank text produces an empty
// breadcrumb segment; a skipped level adds no segment).
func splitSections(content string) []section {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	var stack []headingEntry
	var sections []section
	var cur *section
	var body strings.Builder

	flush := func() {
		if cur != nil {
			cur.content = body.String()
			sections = append(sections, *cur)
			body.Reset()
		}
	}

	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()

			level := len(m[1])
			title := strings.TrimSpace(m[2])

			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingEntry{level: level, text: title})

			texts := make([]string, len(stack))
			for i, e := range stack {
				texts[i] = e.text
			}
			cur = &section{headingPath: strings.Join(texts, " > ")}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		if cur == nil {
			cur = &section{headingPath: ""}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}
