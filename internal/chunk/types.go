// Package chunk splits Markdown documents into heading-scoped, code-block
// -atomic chunks, extracting tags and cross-file references along the way.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/memexmcp/memex/internal/store"
)

// MaxChars and MinChars are the hard packing bounds: a chunk is never
// emitted below MinChars (after trimming) and is packed greedily up to
// MaxChars, except a single oversized atomic block, which is emitted alone.
const (
	MaxChars = 2000
	MinChars = 100
)

// Chunker splits a document's raw Markdown into store.Chunk values.
type Chunker struct{}

// New returns a Chunker. It is stateless; one instance serves every file.
func New() *Chunker {
	return &Chunker{}
}

// Chunk splits raw Markdown content from sourceFile (already domain-routed)
// into ordered chunks, per-file chunk_index starting at 0.
func (c *Chunker) Chunk(content, sourceFile, domain string) []store.Chunk {
	normalizedPath := normalizeSlashes(sourceFile)
	isInstruction := strings.HasSuffix(strings.ToLower(normalizedPath), ".instructions.md")

	sections := splitSections(content)

	var packed []block
	for _, sec := range sections {
		var blocks []block
		if len(sec.content) <= MaxChars {
			blocks = []block{{headingPath: sec.headingPath, text: sec.content}}
		} else {
			blocks = splitSectionIntoBlocks(sec)
		}
		packed = append(packed, packBlocks(blocks)...)
	}

	now := time.Now().UTC()
	chunks := make([]store.Chunk, 0, len(packed))
	index := 0
	for _, p := range packed {
		trimmed := strings.TrimSpace(p.text)
		if len(trimmed) < MinChars {
			continue
		}

		id := chunkID(normalizedPath, index)
		chunks = append(chunks, store.Chunk{
			ID:            id,
			Content:       trimmed,
			SourceFile:    normalizedPath,
			HeadingPath:   p.headingPath,
			Domain:        domain,
			Tags:          extractTags(trimmed),
			RelatedFiles:  extractRelatedFiles(trimmed),
			IsInstruction: isInstruction,
			LastUpdated:   now,
			ChunkIndex:    index,
		})
		index++
	}

	return chunks
}

// chunkID computes a stable identifier: the first 16 hex chars of
// SHA-256(normalized_relative_path + "::" + chunk_index).
func chunkID(normalizedPath string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%d", normalizedPath, chunkIndex)))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeSlashes(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "/")
}
