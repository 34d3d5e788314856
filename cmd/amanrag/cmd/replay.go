package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
)

func newReplayCmd(g *globalOptions) *cobra.Command {
	var (
		force      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "replay [doc_id...]",
		Short: "Re-ingest stored documents from their stored content",
		Long: `Re-drive stored documents through ingestion using the content, metadata
and contract kept in the store. With no ids every document is replayed.
Use --force to rewrite chunks and embeddings even when content is unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureIndex(ctx); err != nil {
				return err
			}

			sum, err := a.pipeline.Replay(ctx, index.ReplayOptions{Force: force, DocIDs: args})
			if err != nil {
				return err
			}
			return reportRun(out, jsonOutput, sum)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess unchanged documents")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
