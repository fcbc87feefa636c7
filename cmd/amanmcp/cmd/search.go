package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		currentFile string
		topK        int
		sourcePath  string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the result",
		Long: `Run a single hybrid search against the indexed corpus and print the
formatted result, for local debugging outside the RPC transport.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, sourcePath, query, currentFile, topK)
		},
	}

	cmd.Flags().StringVar(&sourcePath, "path", "", "source root (default: current directory)")
	cmd.Flags().StringVar(&currentFile, "current-file", "", "bias results toward this file's routed domain")
	cmd.Flags().IntVar(&topK, "top-k", 5, "maximum number of results, clamped to [1,10]")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, path, query, currentFile string, topK int) error {
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

	out, err := comps.Search.Search(ctx, query, currentFile, topK)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
