package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
)

func newReindexCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild embeddings when the embedder or chunk settings changed",
		Long: `Compare the stored index signature with the running configuration and
re-embed every chunk when the embedding backend, model, dimension or
algorithm changed, or when stored embeddings are inconsistent.

Other commands do this automatically; reindex runs it on its own.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			rebuilt, err := a.tracker.EnsureCompatible(ctx)
			if err != nil {
				return err
			}
			if rebuilt {
				out.Successf("Index rebuilt for %s", a.tracker.Current())
			} else {
				out.Statusf("➖", "Index already matches %s", a.tracker.Current())
			}
			return nil
		},
	}
}
