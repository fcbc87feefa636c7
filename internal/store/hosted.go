package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// HostedIndex implements Index against an Azure AI Search-shaped HTTPS
// endpoint: documents are upserted/deleted via the index's mergeOrUpload
// batch API and searched via its hybrid (full-text + vector) query API.
// It satisfies the same WriteIndex/ReadIndex contract as SQLiteIndex so the
// service container can swap providers without touching the pipeline or
// the search orchestrator.
type HostedIndex struct {
	endpoint   string
	apiKey     string
	indexName  string
	httpClient *http.Client
	retry      memexerrors.RetryConfig
	breaker    *memexerrors.CircuitBreaker
}

var (
	_ WriteIndex = (*HostedIndex)(nil)
	_ ReadIndex  = (*HostedIndex)(nil)
)

// NewHostedIndex builds a hosted store client. endpoint is the search
// service's base URL (e.g. "https://my-search.search.windows.net").
func NewHostedIndex(endpoint, apiKey, indexName string) *HostedIndex {
	return &HostedIndex{
		endpoint:  endpoint,
		apiKey:    apiKey,
		indexName: indexName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:   memexerrors.DefaultRetryConfig(),
		breaker: memexerrors.NewCircuitBreaker("hosted-store"),
	}
}

// EnsureIndex is a no-op: the hosted index's schema is provisioned out of
// band (Azure portal / ARM template), not by this client.
func (h *HostedIndex) EnsureIndex(ctx context.Context) error {
	return nil
}

type hostedDoc struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	SourceFile    string    `json:"sourceFile"`
	HeadingPath   string    `json:"headingPath"`
	Domain        string    `json:"domain"`
	Tags          []string  `json:"tags"`
	RelatedFiles  []string  `json:"relatedFiles"`
	IsInstruction bool      `json:"isInstruction"`
	Embedding     []float32 `json:"embedding"`
	LastUpdated   time.Time `json:"lastUpdated"`
	ChunkIndex    int       `json:"chunkIndex"`
	SearchAction  string    `json:"@search.action"`
}

func (h *HostedIndex) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]hostedDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = hostedDoc{
			ID:            c.ID,
			Content:       c.Content,
			SourceFile:    c.SourceFile,
			HeadingPath:   c.HeadingPath,
			Domain:        c.Domain,
			Tags:          c.Tags,
			RelatedFiles:  c.RelatedFiles,
			IsInstruction: c.IsInstruction,
			Embedding:     c.Embedding,
			LastUpdated:   c.LastUpdated,
			ChunkIndex:    c.ChunkIndex,
			SearchAction:  "mergeOrUpload",
		}
	}
	_, err := memexerrors.RetryWithResult(ctx, h.retry, func() (struct{}, error) {
		return struct{}{}, h.postBatch(ctx, docs)
	})
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "hosted upsert", err)
	}
	return nil
}

func (h *HostedIndex) DeleteChunksForFile(ctx context.Context, sourceFile string) error {
	ids, err := h.idsForFile(ctx, sourceFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	docs := make([]hostedDoc, len(ids))
	for i, id := range ids {
		docs[i] = hostedDoc{ID: id, SearchAction: "delete"}
	}
	_, err = memexerrors.RetryWithResult(ctx, h.retry, func() (struct{}, error) {
		return struct{}{}, h.postBatch(ctx, docs)
	})
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "hosted delete", err)
	}
	return nil
}

func (h *HostedIndex) Close() error {
	return nil
}

// idsForFile queries the hosted index for every document id with the given
// sourceFile, so DeleteChunksForFile can issue per-id delete actions (the
// hosted API has no "delete where" operation).
func (h *HostedIndex) idsForFile(ctx context.Context, sourceFile string) ([]string, error) {
	req := map[string]any{
		"search": "*",
		"filter": fmt.Sprintf("sourceFile eq '%s'", escapeODataString(sourceFile)),
		"select": "id",
		"top":    1000,
	}
	var resp struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := h.call(ctx, "POST", "docs/search", req, &resp); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindStoreError, "hosted lookup by source file", err)
	}
	ids := make([]string, len(resp.Value))
	for i, v := range resp.Value {
		ids[i] = v.ID
	}
	return ids, nil
}

func (h *HostedIndex) Search(ctx context.Context, query string, queryVector []float32, topK int) ([]SearchHit, error) {
	req := map[string]any{
		"search": query,
		"top":    topK,
		"select": "id,content,sourceFile,headingPath,domain,tags,relatedFiles,isInstruction,lastUpdated,chunkIndex",
	}
	if len(queryVector) > 0 {
		req["vectorQueries"] = []map[string]any{
			{"kind": "vector", "vector": queryVector, "fields": "embedding", "k": topK},
		}
	}

	var resp struct {
		Value []struct {
			hostedDoc
			SearchScore float64 `json:"@search.score"`
		} `json:"value"`
	}
	if err := h.call(ctx, "POST", "docs/search", req, &resp); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindStoreError, "hosted search", err)
	}

	hits := make([]SearchHit, len(resp.Value))
	for i, v := range resp.Value {
		hits[i] = SearchHit{
			Chunk: Chunk{
				ID:            v.ID,
				Content:       v.Content,
				SourceFile:    v.SourceFile,
				HeadingPath:   v.HeadingPath,
				Domain:        v.Domain,
				Tags:          v.Tags,
				RelatedFiles:  v.RelatedFiles,
				IsInstruction: v.IsInstruction,
				LastUpdated:   v.LastUpdated,
				ChunkIndex:    v.ChunkIndex,
			},
			Score: v.SearchScore,
		}
	}
	return hits, nil
}

func (h *HostedIndex) ChunkCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"@odata.count"`
	}
	req := map[string]any{"search": "*", "count": true, "top": 0}
	if err := h.call(ctx, "POST", "docs/search", req, &resp); err != nil {
		return 0, nil
	}
	return resp.Count, nil
}

func (h *HostedIndex) SourceFileCount(ctx context.Context) (int, error) {
	req := map[string]any{
		"search":  "*",
		"facets":  []string{"sourceFile,count:100000"},
		"top":     0,
	}
	var resp struct {
		Facets struct {
			SourceFile []struct {
				Value string `json:"value"`
			} `json:"sourceFile"`
		} `json:"@search.facets"`
	}
	if err := h.call(ctx, "POST", "docs/search", req, &resp); err != nil {
		return 0, nil
	}
	return len(resp.Facets.SourceFile), nil
}

// LastIndexedTime is not tracked server-side by the hosted index; the
// pipeline's local state file remains authoritative for that value even
// under the azure provider.
func (h *HostedIndex) LastIndexedTime(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

func (h *HostedIndex) postBatch(ctx context.Context, docs []hostedDoc) error {
	return h.call(ctx, "POST", "docs/index", map[string]any{"value": docs}, nil)
}

// call trips h.breaker on repeated failures, so a persistently unreachable
// search service fails fast instead of blocking every subsequent operation
// on a fresh dial timeout.
func (h *HostedIndex) call(ctx context.Context, method, path string, body any, out any) error {
	return h.breaker.Execute(func() error {
		return h.doCall(ctx, method, path, body, out)
	})
}

func (h *HostedIndex) doCall(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/%s?api-version=2023-11-01", h.endpoint, h.indexName, path)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", h.apiKey)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("hosted index returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func escapeODataString(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r == '\'' {
			b.WriteString("''")
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
