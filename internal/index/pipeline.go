// Package index orchestrates one indexing pass: scan for changes, delete
// chunks for removed files, chunk and embed changed files, upsert, and
// persist scan state. State advances only on full success.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/memexmcp/memex/internal/chunk"
	memexconfig "github.com/memexmcp/memex/internal/config"
	"github.com/memexmcp/memex/internal/embed"
	memexerrors "github.com/memexmcp/memex/internal/errors"
	"github.com/memexmcp/memex/internal/routing"
	"github.com/memexmcp/memex/internal/scanner"
	"github.com/memexmcp/memex/internal/store"
)

// managementFileName is the optional routing-map source file, resolved
// relative to the source root.
const managementFileName = "MemoryExchangeManagement.md"

// lockFileName guards the single-writer invariant across OS processes: two
// `amanmcp index` invocations against the same root must not interleave.
const lockFileName = ".memory-exchange.lock"

// Pipeline runs one indexing pass against a source tree.
type Pipeline struct {
	SourceRoot       string
	IndexName        string
	ExcludeGlobs     []string
	RespectGitignore bool
	Submodules       *memexconfig.SubmoduleConfig
	Workers          int

	Write   store.WriteIndex
	Embed   embed.Embedder
	Scanner *scanner.Scanner
	Chunker *chunk.Chunker
}

// New builds a Pipeline with a fresh scanner and chunker.
func New(sourceRoot, indexName string, write store.WriteIndex, embedder embed.Embedder) (*Pipeline, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		SourceRoot:       sourceRoot,
		IndexName:        indexName,
		RespectGitignore: true,
		Write:            write,
		Embed:            embedder,
		Scanner:          sc,
		Chunker:          chunk.New(),
	}, nil
}

// Stats reports what one Run call changed.
type Stats struct {
	ChangedFiles int
	DeletedFiles int
	ChunksBuffered int
	NoOp           bool
}

// Run executes the nine-step indexing pass. A failure at the scan, embed,
// or upsert step aborts the pipeline and leaves the previous scan state in
// place, so the next run sees the same dirty set; a failure building or
// persisting the lock aborts before anything is touched.
func (p *Pipeline) Run(ctx context.Context, force bool) (*Stats, error) {
	lockPath := filepath.Join(p.SourceRoot, lockFileName)
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "acquire pipeline lock", err)
	}
	if !locked {
		return nil, memexerrors.New(memexerrors.KindIOError, "another indexing pass is already running against this root")
	}
	defer fl.Unlock()

	start := time.Now()

	// Step 1: ensure_index.
	if err := p.Write.EnsureIndex(ctx); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindStoreError, "ensure index", err)
	}

	// Step 2: scan.
	scanResult, err := p.Scanner.Scan(ctx, &scanner.Options{
		RootDir:          p.SourceRoot,
		ForceFullRebuild: force,
		ExcludeGlobs:     p.ExcludeGlobs,
		RespectGitignore: p.RespectGitignore,
		Workers:          p.Workers,
		Submodules:       p.Submodules,
		IndexName:        p.IndexName,
	})
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "scan source tree", err)
	}

	// Step 3: no-op check.
	if len(scanResult.Changed) == 0 && len(scanResult.Deleted) == 0 {
		slog.Info("indexing pass: no changes", slog.String("root", p.SourceRoot))
		return &Stats{NoOp: true}, nil
	}

	// Step 4: load routing map (non-fatal on failure). Query-time search
	// consults it for domain boosting (internal/search.Orchestrator); the
	// pipeline itself never uses it to assign a chunk's ingestion-time
	// domain, which comes from routing.DomainFromSourcePath alone.
	if p.loadRoutingMap() != nil {
		slog.Debug("routing map loaded", slog.String("root", p.SourceRoot))
	}

	// Step 5: deletions.
	for _, path := range scanResult.Deleted {
		if err := p.Write.DeleteChunksForFile(ctx, path); err != nil {
			slog.Warn("failed to delete chunks for removed file", slog.String("file", path), slog.String("error", err.Error()))
		}
	}

	// Step 6: chunk changed files, buffering for a single embedding batch.
	var buffered []store.Chunk
	for _, relPath := range scanResult.Changed {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		abs := filepath.Join(p.SourceRoot, filepath.FromSlash(relPath))
		data, err := os.ReadFile(abs)
		if err != nil {
			slog.Warn("failed to read changed file, skipping", slog.String("file", relPath), slog.String("error", err.Error()))
			continue
		}

		domain := routing.DomainFromSourcePath(relPath)

		if err := p.Write.DeleteChunksForFile(ctx, relPath); err != nil {
			return nil, memexerrors.Wrap(memexerrors.KindStoreError, "delete stale chunks before re-chunking", err)
		}

		buffered = append(buffered, p.Chunker.Chunk(string(data), relPath, domain)...)
	}

	// Step 7: one embedding batch over all buffered chunks.
	if len(buffered) > 0 {
		texts := make([]string, len(buffered))
		for i, c := range buffered {
			texts[i] = c.Content
		}
		vectors, err := p.Embed.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "embed buffered chunks", err)
		}
		for i := range buffered {
			buffered[i].Embedding = vectors[i]
		}
	}

	// Step 8: upsert.
	if err := p.Write.UpsertChunks(ctx, buffered); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindStoreError, "upsert buffered chunks", err)
	}

	// Step 9: persist state. Only reached on full success, so a failure at
	// any earlier step leaves the prior state file in place.
	if err := scanner.SaveState(scanner.StatePath(p.SourceRoot), scanResult.NewState); err != nil {
		return nil, err
	}

	slog.Info("indexing pass complete",
		slog.Int("changed", len(scanResult.Changed)),
		slog.Int("deleted", len(scanResult.Deleted)),
		slog.Int("chunks", len(buffered)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Stats{
		ChangedFiles:   len(scanResult.Changed),
		DeletedFiles:   len(scanResult.Deleted),
		ChunksBuffered: len(buffered),
	}, nil
}

func (p *Pipeline) loadRoutingMap() *routing.Map {
	return LoadRoutingMap(p.SourceRoot)
}

// LoadRoutingMap reads and parses MemoryExchangeManagement.md from
// sourceRoot, returning nil if the file is absent or unreadable. Exported so
// callers building a search.Orchestrator can load the routing map used for
// query-time domain boosting; the pipeline itself tags chunk domains from
// the source path alone.
func LoadRoutingMap(sourceRoot string) *routing.Map {
	managementPath := filepath.Join(sourceRoot, managementFileName)
	m, err := routing.ParseFile(func() (string, error) {
		data, err := os.ReadFile(managementPath)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		slog.Debug("no routing map loaded", slog.String("error", err.Error()))
		return nil
	}
	return m
}
