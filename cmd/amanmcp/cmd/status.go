package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memexmcp/memex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Print the status report and exit",
		Long: `Report source root, provider, index name, chunk and source-file
counts, and last indexed time, with a remediation hint if the index is
empty.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runStatus(cmd.Context(), cmd, path)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, path string) error {
	root, err := resolveSourcePath(path)
	if err != nil {
		return err
	}
	cfg, err := loadConfigAt(root)
	if err != nil {
		return err
	}

	comps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	chunkCount, err := comps.Store.ChunkCount(ctx)
	if err != nil {
		return err
	}
	fileCount, err := comps.Store.SourceFileCount(ctx)
	if err != nil {
		return err
	}
	lastIndexed, err := comps.Store.LastIndexedTime(ctx)
	if err != nil {
		return err
	}

	out := ui.IsColorTerminal(os.Stdout.Fd())
	report := ui.RenderStatus(ui.StatusReport{
		SourceRoot:      cfg.SourcePath,
		Provider:        cfg.Provider,
		IndexName:       cfg.IndexName,
		ChunkCount:      chunkCount,
		SourceFileCount: fileCount,
		LastIndexed:     lastIndexed,
	}, out)

	_, err = fmt.Fprint(cmd.OutOrStdout(), report)
	return err
}
