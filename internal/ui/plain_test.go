package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderStatus_PlainNoColor(t *testing.T) {
	out := RenderStatus(StatusReport{
		SourceRoot:      "/tmp/docs",
		Provider:        "local",
		IndexName:       "memory-exchange",
		ChunkCount:      42,
		SourceFileCount: 7,
	}, false)

	assert.Contains(t, out, "Source root: /tmp/docs")
	assert.Contains(t, out, "Provider: local")
	assert.Contains(t, out, "Chunks indexed: 42")
	assert.Contains(t, out, "Source files: 7")
	assert.Contains(t, out, "Last indexed: never")
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderStatus_ColorWrapsLabels(t *testing.T) {
	out := RenderStatus(StatusReport{SourceRoot: "/a", ChunkCount: 1}, true)
	assert.Contains(t, out, "\x1b[1mSource root:\x1b[0m")
}

func TestRenderStatus_LastIndexedFormatted(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := RenderStatus(StatusReport{LastIndexed: &ts}, false)
	assert.Contains(t, out, "Last indexed: 2026-01-02T03:04:05Z")
}

func TestRenderStatus_EmptyIndexShowsHint(t *testing.T) {
	out := RenderStatus(StatusReport{ChunkCount: 0}, false)
	assert.Contains(t, out, "no chunks indexed yet")
}

func TestRenderStatus_NonEmptyIndexOmitsHint(t *testing.T) {
	out := RenderStatus(StatusReport{ChunkCount: 3}, false)
	assert.NotContains(t, out, "no chunks indexed yet")
}
