// Package mcp exposes the stdio JSON-RPC surface: search, get_file, and
// status, backed by a search.Orchestrator and a local source root.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	memexerrors "github.com/memexmcp/memex/internal/errors"
	"github.com/memexmcp/memex/internal/search"
	"github.com/memexmcp/memex/internal/store"
	"github.com/memexmcp/memex/internal/ui"
	"github.com/memexmcp/memex/pkg/version"
)

// Server is the MCP stdio server.
type Server struct {
	mcp          *gosdk.Server
	orchestrator *search.Orchestrator
	read         store.ReadIndex
	sourceRoot   string
	providerName string
	indexName    string
}

// SearchInput is the search tool's argument schema.
type SearchInput struct {
	Query           string `json:"query" jsonschema:"the search query to execute"`
	CurrentFilePath string `json:"currentFilePath,omitempty" jsonschema:"caller's current file path; biases results toward its routed domain"`
	TopK            int    `json:"topK,omitempty" jsonschema:"maximum number of results, clamped to [1,10], default 5"`
}

// GetFileInput is the get_file tool's argument schema.
type GetFileInput struct {
	FilePath string `json:"filePath" jsonschema:"path to a file, relative to the source root"`
}

// StatusInput is the status tool's argument schema (no parameters).
type StatusInput struct{}

// NewServer builds a Server. sourceRoot must be the canonicalized,
// absolute source root, since get_file's traversal guard compares against
// it directly.
func NewServer(orchestrator *search.Orchestrator, read store.ReadIndex, sourceRoot, providerName, indexName string) *Server {
	s := &Server{
		orchestrator: orchestrator,
		read:         read,
		sourceRoot:   sourceRoot,
		providerName: providerName,
		indexName:    indexName,
	}

	s.mcp = gosdk.NewServer(&gosdk.Implementation{
		Name:    "memex",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "search",
		Description: "Hybrid BM25 + vector search over the indexed Markdown corpus, with domain-aware boosting when currentFilePath is given.",
	}, s.handleSearch)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "get_file",
		Description: "Return the full contents of a file under the source root.",
	}, s.handleGetFile)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "status",
		Description: "Report source root, provider, index name, chunk and file counts, and last indexed time.",
	}, s.handleStatus)
}

func (s *Server) handleSearch(ctx context.Context, _ *gosdk.CallToolRequest, in SearchInput) (*gosdk.CallToolResult, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, "", memexerrors.New(memexerrors.KindConfigurationError, "query is required")
	}
	out, err := s.orchestrator.Search(ctx, in.Query, in.CurrentFilePath, in.TopK)
	if err != nil {
		return nil, "", err
	}
	return nil, out, nil
}

// handleGetFile resolves filePath against the source root and rejects any
// path that escapes it, before returning the file's contents.
func (s *Server) handleGetFile(ctx context.Context, _ *gosdk.CallToolRequest, in GetFileInput) (*gosdk.CallToolResult, string, error) {
	resolved, err := s.resolveUnderRoot(in.FilePath)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, "", memexerrors.Wrap(memexerrors.KindIOError, "read file "+in.FilePath, err)
	}
	return nil, string(data), nil
}

func (s *Server) resolveUnderRoot(relPath string) (string, error) {
	if relPath == "" {
		return "", memexerrors.New(memexerrors.KindConfigurationError, "filePath is required")
	}
	cleanRel := filepath.Clean(filepath.FromSlash(relPath))
	resolved := filepath.Join(s.sourceRoot, cleanRel)

	root := filepath.Clean(s.sourceRoot)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", memexerrors.New(memexerrors.KindConfigurationError, "filePath escapes the source root").
			WithDetail("filePath", relPath)
	}
	return resolved, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *gosdk.CallToolRequest, _ StatusInput) (*gosdk.CallToolResult, string, error) {
	chunkCount, err := s.read.ChunkCount(ctx)
	if err != nil {
		return nil, "", err
	}
	fileCount, err := s.read.SourceFileCount(ctx)
	if err != nil {
		return nil, "", err
	}
	lastIndexed, err := s.read.LastIndexedTime(ctx)
	if err != nil {
		return nil, "", err
	}

	report := ui.RenderStatus(ui.StatusReport{
		SourceRoot:      s.sourceRoot,
		Provider:        s.providerName,
		IndexName:       s.indexName,
		ChunkCount:      chunkCount,
		SourceFileCount: fileCount,
		LastIndexed:     lastIndexed,
	}, false)
	return nil, report, nil
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	err := s.mcp.Run(ctx, &gosdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		slog.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
