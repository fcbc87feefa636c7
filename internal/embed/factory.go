package embed

import (
	"context"
	"os"
	"strings"
)

// Provider selects which Embedder implementation to construct.
type Provider string

const (
	// ProviderLocal runs the on-device ONNX transformer (default).
	ProviderLocal Provider = "local"

	// ProviderAzure calls a hosted Azure OpenAI-shaped embeddings endpoint.
	ProviderAzure Provider = "azure"
)

// Options configures embedder construction. Only the fields relevant to
// the selected Provider are read.
type Options struct {
	Provider Provider

	// Local provider.
	ModelPath string

	// Azure provider.
	AzureEndpoint   string
	AzureAPIKey     string
	AzureDimensions int

	// CacheDisabled skips the LRU query-embedding cache wrapper.
	CacheDisabled bool
	CacheSize     int
}

// New constructs an Embedder for the configured provider, wrapped with
// query-embedding caching unless disabled.
func New(_ context.Context, opts Options) (Embedder, error) {
	var embedder Embedder

	switch opts.Provider {
	case ProviderAzure:
		dims := opts.AzureDimensions
		if dims <= 0 {
			dims = Dimensions
		}
		embedder = NewHostedEmbedder(opts.AzureEndpoint, opts.AzureAPIKey, dims)

	default:
		modelPath, err := ResolveModelPath(opts.ModelPath)
		if err != nil {
			return nil, err
		}
		embedder = NewLocalEmbedder(modelPath)
	}

	if opts.CacheDisabled || cacheDisabledByEnv() {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, opts.CacheSize), nil
}

// cacheDisabledByEnv allows disabling the query-embedding cache without a
// config change, useful when diagnosing stale-embedding issues.
func cacheDisabledByEnv() bool {
	switch strings.ToLower(os.Getenv("MEMEX_EMBED_CACHE")) {
	case "false", "0", "off", "disabled":
		return true
	default:
		return false
	}
}
