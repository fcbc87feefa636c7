package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memexmcp/memex/internal/chunk"
	"github.com/memexmcp/memex/internal/scanner"
	"github.com/memexmcp/memex/internal/store"
)

type fakeWriteIndex struct {
	upserted []store.Chunk
	deleted  []string
	ensured  bool
}

func (f *fakeWriteIndex) EnsureIndex(ctx context.Context) error { f.ensured = true; return nil }
func (f *fakeWriteIndex) UpsertChunks(ctx context.Context, chunks []store.Chunk) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}
func (f *fakeWriteIndex) DeleteChunksForFile(ctx context.Context, sourceFile string) error {
	f.deleted = append(f.deleted, sourceFile)
	return nil
}
func (f *fakeWriteIndex) Close() error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int               { return 1 }
func (fakeEmbedder) ModelName() string             { return "fake" }
func (fakeEmbedder) Available(context.Context) bool { return true }
func (fakeEmbedder) Close() error                   { return nil }

func newTestPipeline(t *testing.T, root string, write *fakeWriteIndex) *Pipeline {
	t.Helper()
	sc, err := scanner.New()
	require.NoError(t, err)
	return &Pipeline{
		SourceRoot:       root,
		IndexName:        "test-index",
		RespectGitignore: false,
		Write:            write,
		Embed:            fakeEmbedder{},
		Scanner:          sc,
		Chunker:          chunk.New(),
	}
}

func TestPipeline_Run_IndexesNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# Heading\n\nSome content that is long enough to survive pruning of short chunks in the pipeline test."), 0o644))

	write := &fakeWriteIndex{}
	p := newTestPipeline(t, root, write)

	stats, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, stats.NoOp)
	assert.Equal(t, 1, stats.ChangedFiles)
	assert.NotEmpty(t, write.upserted)
	assert.True(t, write.ensured)
}

func TestPipeline_Run_NoOpOnUnchangedSecondRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# Heading\n\nSome content that is long enough to survive pruning of short chunks in the pipeline test."), 0o644))

	write := &fakeWriteIndex{}
	p := newTestPipeline(t, root, write)

	_, err := p.Run(context.Background(), false)
	require.NoError(t, err)

	stats, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, stats.NoOp)
}

func TestPipeline_Run_AssignsDomainFromSourcePathAlone(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "domains", "rp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "domains", "rp", "b.md"),
		[]byte("# Heading\n\nSome content that is long enough to survive pruning of short chunks in the pipeline test."), 0o644))

	// A routing map entry whose glob happens to substring-match this file's
	// own path must not retag it: ingestion-time domain comes from
	// routing.DomainFromSourcePath alone, never from DomainsForCodePath.
	require.NoError(t, os.WriteFile(filepath.Join(root, managementFileName),
		[]byte("# Routing\n\n```yaml\nroutes:\n  backend: ['domains/rp/**']\n```\n"), 0o644))

	write := &fakeWriteIndex{}
	p := newTestPipeline(t, root, write)

	stats, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, stats.NoOp)
	require.NotEmpty(t, write.upserted)
	for _, c := range write.upserted {
		assert.Equal(t, "rp", c.Domain)
	}
}

func TestPipeline_Run_DeletesChunksForRemovedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# Heading\n\nSome content that is long enough to survive pruning of short chunks in the pipeline test."), 0o644))

	write := &fakeWriteIndex{}
	p := newTestPipeline(t, root, write)
	_, err := p.Run(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	stats, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeletedFiles)
	assert.Contains(t, write.deleted, "a.md")
}
