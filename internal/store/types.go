// Package store provides the local, embedded persistence layer: a SQLite
// database combining row storage, an FTS5 inverted index, and little-endian
// float32 blobs for dense vectors. A hosted variant satisfies the same
// interfaces over HTTPS.
package store

import (
	"context"
	"time"
)

// Chunk is the unit of search: a span of Markdown with its heading
// ancestors, tags, and (once embedded) a single dense vector.
type Chunk struct {
	ID            string
	Content       string
	SourceFile    string
	HeadingPath   string
	Domain        string
	Tags          []string
	RelatedFiles  []string
	IsInstruction bool
	Embedding     []float32
	LastUpdated   time.Time
	ChunkIndex    int
}

// SearchHit pairs a Chunk with its provider-native score. Higher is always
// better after RRF normalization in the hybrid path.
type SearchHit struct {
	Chunk Chunk
	Score float64
}

// WriteIndex upserts and deletes chunks keyed by id and source file. Exactly
// one writer is active at a time; the indexing pipeline serializes itself
// around this contract.
type WriteIndex interface {
	EnsureIndex(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []Chunk) error
	DeleteChunksForFile(ctx context.Context, sourceFile string) error
	Close() error
}

// ReadIndex returns a ranked list of (chunk, score) for a hybrid query. It is
// read-only from the orchestrator's perspective; many readers may be active
// concurrently.
type ReadIndex interface {
	Search(ctx context.Context, query string, queryVector []float32, topK int) ([]SearchHit, error)
	ChunkCount(ctx context.Context) (int, error)
	SourceFileCount(ctx context.Context) (int, error)
	LastIndexedTime(ctx context.Context) (*time.Time, error)
}

// Index composes WriteIndex and ReadIndex, the shape the service container
// wires up for each provider.
type Index interface {
	WriteIndex
	ReadIndex
}

// rrfConstant is the RRF smoothing constant k, fixed rather than configurable.
const rrfConstant = 60

// overfetchMultiplier is how many candidate rows each ranked pass fetches
// relative to topK before RRF merge and truncation.
const overfetchMultiplier = 3

// fuseRRF merges ranked id lists into RRF scores. Each list is already sorted
// best-first; rank is its zero-based position. A chunk missing from a list
// contributes nothing from that list.
func fuseRRF(rankedLists ...[]string) map[string]float64 {
	scores := make(map[string]float64)
	for _, list := range rankedLists {
		for rank, id := range list {
			scores[id] += 1.0 / float64(rrfConstant+rank)
		}
	}
	return scores
}
