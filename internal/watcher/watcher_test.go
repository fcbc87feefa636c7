package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memexmcp/memex/internal/chunk"
	"github.com/memexmcp/memex/internal/index"
	"github.com/memexmcp/memex/internal/scanner"
	"github.com/memexmcp/memex/internal/store"
)

type countingWriteIndex struct {
	upserts int
}

func (c *countingWriteIndex) EnsureIndex(ctx context.Context) error { return nil }
func (c *countingWriteIndex) UpsertChunks(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) > 0 {
		c.upserts++
	}
	return nil
}
func (c *countingWriteIndex) DeleteChunksForFile(ctx context.Context, sourceFile string) error {
	return nil
}
func (c *countingWriteIndex) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
func (stubEmbedder) Dimensions() int                { return 1 }
func (stubEmbedder) ModelName() string              { return "stub" }
func (stubEmbedder) Available(context.Context) bool { return true }
func (stubEmbedder) Close() error                   { return nil }

func newTestService(t *testing.T, root string, write *countingWriteIndex, debounce time.Duration) *Service {
	t.Helper()
	sc, err := scanner.New()
	require.NoError(t, err)
	p := &index.Pipeline{
		SourceRoot:       root,
		IndexName:        "test-index",
		RespectGitignore: false,
		Write:            write,
		Embed:            stubEmbedder{},
		Scanner:          sc,
		Chunker:          chunk.New(),
	}
	return &Service{SourceRoot: root, Pipeline: p, Debounce: debounce}
}

func TestService_Run_IndexesOnStartupAndOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"),
		[]byte("# Heading\n\nEnough content to survive the chunk pruning threshold in this test, padded with a few more words."), 0o644))

	write := &countingWriteIndex{}
	svc := newTestService(t, root, write, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Give the startup pass time to land.
	require.Eventually(t, func() bool { return write.upserts >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"),
		[]byte("# Another\n\nMore content long enough to survive pruning for the second file in this test, padded with a few more words."), 0o644))

	require.Eventually(t, func() bool { return write.upserts >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestIsRelevant_FiltersNonMarkdown(t *testing.T) {
	assert.True(t, isRelevant(fsnotify.Event{Name: "a.md", Op: fsnotify.Write}))
	assert.False(t, isRelevant(fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}))
	assert.False(t, isRelevant(fsnotify.Event{Name: "a.md", Op: fsnotify.Chmod}))
}
