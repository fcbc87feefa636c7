package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memexmcp/memex/internal/mcp"
	"github.com/memexmcp/memex/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		watch      bool
		buildIndex bool
	)

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Start the MCP stdio server",
		Long: `Start the MCP stdio server, exposing search, get_file, and status
tools over stdio JSON-RPC. With --watch, an initial indexing pass runs and
the source tree is then watched for changes; with --build-index alone, a
single indexing pass runs before the server starts serving.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(ctx, path, watch, buildIndex)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "watch the source tree and reindex on change")
	cmd.Flags().BoolVar(&buildIndex, "build-index", false, "run one indexing pass before serving")

	return cmd
}

func runServe(ctx context.Context, path string, watch, buildIndex bool) error {
	root, err := resolveSourcePath(path)
	if err != nil {
		return err
	}
	cfg, err := loadConfigAt(root)
	if err != nil {
		return err
	}
	cfg.Watch = cfg.Watch || watch
	cfg.BuildIndex = cfg.BuildIndex || buildIndex || cfg.Watch

	comps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	switch {
	case cfg.Watch:
		watchSvc := watcher.New(cfg.SourcePath, comps.Pipeline)
		go func() {
			if err := watchSvc.Run(ctx); err != nil {
				slog.Error("watcher stopped with error", slog.String("error", err.Error()))
			}
		}()
	case cfg.BuildIndex:
		if _, err := comps.Pipeline.Run(ctx, false); err != nil {
			slog.Error("startup indexing pass failed", slog.String("error", err.Error()))
		}
	}

	server := mcp.NewServer(comps.Search, comps.Store, cfg.SourcePath, cfg.Provider, cfg.IndexName)
	return server.Serve(ctx)
}
