package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Run one indexing pass and exit",
		Long: `Scan the source tree for changed and deleted Markdown files, chunk
and embed the changes, and upsert them into the store. With --force, the
entire tree is rescanned and re-embedded regardless of recorded state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rescan and re-embed the entire tree")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
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

	stats, err := comps.Pipeline.Run(ctx, force)
	if err != nil {
		return err
	}

	if stats.NoOp {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no changes, index already up to date")
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d changed file(s), removed %d deleted file(s), %d chunk(s) embedded\n",
		stats.ChangedFiles, stats.DeletedFiles, stats.ChunksBuffered)
	return err
}
