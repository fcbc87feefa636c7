package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// HostedEmbedder calls an Azure OpenAI-shaped embeddings endpoint:
// POST {input: []string} -> {data: [{embedding: []float32}]}.
type HostedEmbedder struct {
	endpoint   string
	apiKey     string
	dimensions int
	httpClient *http.Client
	retry      memexerrors.RetryConfig
	breaker    *memexerrors.CircuitBreaker
}

// NewHostedEmbedder constructs a HostedEmbedder. dimensions is the
// dimension advertised by the deployed model.
func NewHostedEmbedder(endpoint, apiKey string, dimensions int) *HostedEmbedder {
	return &HostedEmbedder{
		endpoint:   endpoint,
		apiKey:     apiKey,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      memexerrors.DefaultRetryConfig(),
		breaker:    memexerrors.NewCircuitBreaker("hosted-embedder"),
	}
}

type hostedRequest struct {
	Input []string `json:"input"`
}

type hostedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (e *HostedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch calls the hosted endpoint once per DefaultBatchSize-sized
// slice of texts, retrying transient failures with exponential backoff.
func (e *HostedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += DefaultBatchSize {
		end := i + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := memexerrors.CircuitExecuteWithResult(e.breaker, func() ([][]float32, error) {
			return memexerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
				return e.call(ctx, texts[i:end])
			})
		}, func() ([][]float32, error) {
			return nil, fmt.Errorf("hosted embedder circuit open: %s", e.breaker.Name())
		})
		if err != nil {
			return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "hosted embedding request", err)
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *HostedEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(hostedRequest{Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hosted embedder returned status %d", resp.StatusCode)
	}

	var parsed hostedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		l2Normalize(d.Embedding)
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the configured model dimension.
func (e *HostedEmbedder) Dimensions() int { return e.dimensions }

// ModelName identifies the hosted model for cache keys and status reporting.
func (e *HostedEmbedder) ModelName() string { return "azure-hosted" }

// Available pings the endpoint with a single-token request.
func (e *HostedEmbedder) Available(ctx context.Context) bool {
	_, err := e.call(ctx, []string{"ping"})
	return err == nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (e *HostedEmbedder) Close() error { return nil }
