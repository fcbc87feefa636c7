package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/memexmcp/memex/internal/config"
	"github.com/memexmcp/memex/internal/embed"
	memexerrors "github.com/memexmcp/memex/internal/errors"
	"github.com/memexmcp/memex/internal/index"
	"github.com/memexmcp/memex/internal/search"
	"github.com/memexmcp/memex/internal/store"
)

// components bundles everything a subcommand needs once a config has been
// loaded: the store (serving both read and write roles), the embedder, the
// indexing pipeline, and the search orchestrator built on top of them.
type components struct {
	Config   *config.Config
	Store    store.Index
	Embedder embed.Embedder
	Pipeline *index.Pipeline
	Search   *search.Orchestrator
}

// build wires a components bundle from cfg, following the provider
// selection in cfg.Provider: local uses the on-disk SQLite store and ONNX
// embedder, azure uses the hosted Azure Search index and Azure OpenAI
// embedder.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	embedder, err := embed.New(ctx, embed.Options{
		Provider:        embed.Provider(cfg.Provider),
		ModelPath:       cfg.ModelPath,
		AzureEndpoint:   cfg.AzureEmbedderEndpoint,
		AzureAPIKey:     cfg.AzureEmbedderKey,
		AzureDimensions: embed.Dimensions,
	})
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "construct embedder", err)
	}

	idx, err := buildStore(cfg)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	pipeline, err := index.New(cfg.SourcePath, cfg.IndexName, idx, embedder)
	if err != nil {
		_ = embedder.Close()
		_ = idx.Close()
		return nil, err
	}
	pipeline.ExcludeGlobs = cfg.ExcludePatterns
	pipeline.Submodules = &cfg.Submodules

	routingMap := index.LoadRoutingMap(cfg.SourcePath)
	orch := search.New(idx, embedder, routingMap, cfg.SourcePath)

	return &components{
		Config:   cfg,
		Store:    idx,
		Embedder: embedder,
		Pipeline: pipeline,
		Search:   orch,
	}, nil
}

func buildStore(cfg *config.Config) (store.Index, error) {
	switch embed.Provider(cfg.Provider) {
	case embed.ProviderAzure:
		return store.NewHostedIndex(cfg.AzureSearchEndpoint, cfg.AzureSearchKey, cfg.AzureSearchIndex), nil
	default:
		dbPath := cfg.DatabasePath
		if dbPath == "" {
			dbPath = filepath.Join(cfg.SourcePath, "memory_exchange.db")
		}
		return store.NewSQLiteIndex(dbPath)
	}
}

func (c *components) Close() {
	_ = c.Embedder.Close()
	_ = c.Store.Close()
}

// resolveSourcePath turns a CLI positional argument (or the working
// directory, if none was given) into an absolute path.
func resolveSourcePath(arg string) (string, error) {
	path := arg
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", memexerrors.Wrap(memexerrors.KindIOError, "resolve source path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", memexerrors.Wrap(memexerrors.KindIOError, "access source path", err)
	}
	if !info.IsDir() {
		return "", memexerrors.New(memexerrors.KindConfigurationError, "source path is not a directory").WithDetail("path", abs)
	}
	return abs, nil
}

// loadConfigAt loads configuration for sourceRoot.
func loadConfigAt(sourceRoot string) (*config.Config, error) {
	return config.Load(sourceRoot)
}
