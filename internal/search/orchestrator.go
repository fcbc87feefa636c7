// Package search implements the hybrid search orchestrator: embed the query
// once, fetch overfetched candidates from a ReadIndex (which has already
// fused BM25 and vector ranks internally), apply domain- and
// instruction-aware boosts, and render the winners as the fixed-format text
// block the MCP tool surface returns.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memexmcp/memex/internal/embed"
	memexerrors "github.com/memexmcp/memex/internal/errors"
	"github.com/memexmcp/memex/internal/routing"
	"github.com/memexmcp/memex/internal/store"
)

const (
	// DomainBoost multiplies a hit's score when its chunk's domain is among
	// the domains relevant to the caller's current file.
	DomainBoost = 1.3
	// InstructionBoost multiplies a hit's score when its chunk is an
	// instruction block, gated on a non-empty relevant-domain set.
	InstructionBoost = 1.2
	// Overfetch is how many extra candidates beyond top_k are requested from
	// the read index before boosting and truncation.
	Overfetch = 2

	// DefaultTopK and the clamp bounds for the top_k tool argument.
	DefaultTopK = 5
	MinTopK     = 1
	MaxTopK     = 10

	maxTagsShown = 10

	noResultsText = "No relevant entries found."
)

// Orchestrator answers search queries against a ReadIndex.
type Orchestrator struct {
	Read       store.ReadIndex
	Embed      embed.Embedder
	RoutingMap *routing.Map // optional; nil disables domain/instruction boosting
	SourceRoot string       // used to render absolute Source: paths when non-empty
}

// New builds an Orchestrator. routingMap and sourceRoot may be zero values;
// both are optional refinements, not required inputs.
func New(read store.ReadIndex, embedder embed.Embedder, routingMap *routing.Map, sourceRoot string) *Orchestrator {
	return &Orchestrator{
		Read:       read,
		Embed:      embedder,
		RoutingMap: routingMap,
		SourceRoot: sourceRoot,
	}
}

// ClampTopK applies the [MinTopK, MaxTopK] bound, with DefaultTopK for an
// unset (zero) value.
func ClampTopK(topK int) int {
	if topK == 0 {
		return DefaultTopK
	}
	if topK < MinTopK {
		return MinTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

type scoredHit struct {
	hit      store.SearchHit
	adjusted float64
}

// Search embeds query, fetches top_k·Overfetch candidates, applies the
// domain and instruction boosts relative to currentFilePath's routed
// domains, and renders the top_k survivors as formatted text.
func (o *Orchestrator) Search(ctx context.Context, query, currentFilePath string, topK int) (string, error) {
	topK = ClampTopK(topK)

	qVec, err := o.Embed.Embed(ctx, query)
	if err != nil {
		return "", memexerrors.Wrap(memexerrors.KindEmbedderError, "embed query", err)
	}

	var relevantDomains []string
	if currentFilePath != "" && o.RoutingMap != nil {
		relevantDomains = o.RoutingMap.DomainsForCodePath(currentFilePath)
	}

	raw, err := o.Read.Search(ctx, query, qVec, topK*Overfetch)
	if err != nil {
		return "", memexerrors.Wrap(memexerrors.KindStoreError, "search read index", err)
	}
	if len(raw) == 0 {
		return noResultsText, nil
	}

	domainSet := make(map[string]struct{}, len(relevantDomains))
	for _, d := range relevantDomains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}

	scored := make([]scoredHit, len(raw))
	for i, h := range raw {
		adjusted := h.Score
		if len(domainSet) > 0 {
			if _, ok := domainSet[strings.ToLower(h.Chunk.Domain)]; ok {
				adjusted *= DomainBoost
			}
			if h.Chunk.IsInstruction {
				adjusted *= InstructionBoost
			}
		}
		scored[i] = scoredHit{hit: h, adjusted: adjusted}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].adjusted > scored[j].adjusted
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	return o.format(scored), nil
}

func (o *Orchestrator) format(hits []scoredHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d relevant entries:\n\n", len(hits))
	for _, sh := range hits {
		c := sh.hit.Chunk
		fmt.Fprintf(&sb, "Source: %s\n", o.sourceLabel(c.SourceFile))
		if c.HeadingPath != "" {
			fmt.Fprintf(&sb, "Section: %s\n", c.HeadingPath)
		}
		if c.Domain != "" {
			fmt.Fprintf(&sb, "Domain: %s\n", c.Domain)
		}
		if tags := c.Tags; len(tags) > 0 {
			if len(tags) > maxTagsShown {
				tags = tags[:maxTagsShown]
			}
			fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(tags, ", "))
		}
		sb.WriteString("\n")
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func (o *Orchestrator) sourceLabel(sourceFile string) string {
	if o.SourceRoot == "" {
		return sourceFile
	}
	return strings.TrimRight(o.SourceRoot, "/") + "/" + strings.TrimLeft(sourceFile, "/")
}
