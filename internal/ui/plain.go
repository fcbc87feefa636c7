// Package ui renders the status report shared by the CLI status command
// and the MCP status tool: source root, provider, index name, chunk and
// source-file counts, last indexed time, and a remediation hint when the
// index is empty.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// StatusReport is the data status() needs to render.
type StatusReport struct {
	SourceRoot      string
	Provider        string
	IndexName       string
	ChunkCount      int
	SourceFileCount int
	LastIndexed     *time.Time
}

const emptyIndexHint = "no chunks indexed yet — run with build_index=true (or `amanmcp index`)"

const (
	boldCode = "1"
	dimCode  = "2"
)

// RenderStatus formats r as a labeled, human-readable report. When color is
// true, field labels are bolded and the remediation hint is dimmed with
// ANSI escapes; callers gate this on IsColorTerminal so piped output (and
// the MCP tool, which always passes false) stays plain text.
func RenderStatus(r StatusReport, color bool) string {
	var sb strings.Builder
	writeField(&sb, color, "Source root", r.SourceRoot)
	writeField(&sb, color, "Provider", r.Provider)
	writeField(&sb, color, "Index name", r.IndexName)
	writeField(&sb, color, "Chunks indexed", fmt.Sprintf("%d", r.ChunkCount))
	writeField(&sb, color, "Source files", fmt.Sprintf("%d", r.SourceFileCount))
	if r.LastIndexed != nil {
		writeField(&sb, color, "Last indexed", r.LastIndexed.UTC().Format(time.RFC3339))
	} else {
		writeField(&sb, color, "Last indexed", "never")
	}
	if r.ChunkCount == 0 {
		sb.WriteString("\n")
		sb.WriteString(colorize(color, emptyIndexHint, dimCode))
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeField(sb *strings.Builder, color bool, label, value string) {
	fmt.Fprintf(sb, "%s %s\n", colorize(color, label+":", boldCode), value)
}

func colorize(enabled bool, s, code string) string {
	if !enabled {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// IsColorTerminal reports whether fd is an interactive terminal that should
// receive ANSI-colorized output rather than plain text.
func IsColorTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
