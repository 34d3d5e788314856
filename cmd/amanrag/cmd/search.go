package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK         int
	lexicalLimit int
	vectorLimit  int
	jsonOutput   bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus",
		Long: `Search the corpus with hybrid retrieval.

Full-text and embedding scores are normalized per query and combined with
the configured weights. When embeddings are disabled or unavailable the
ranking is lexical only.`,
		Example: `  amanrag search "solar panel efficiency"
  amanrag search tidal energy -k 10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().IntVar(&opts.lexicalLimit, "lexical-limit", 0, "Lexical candidates per query (default from config)")
	cmd.Flags().IntVar(&opts.vectorLimit, "vector-limit", 0, "Vector candidates per query (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
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

	slog.Info("search_started", slog.String("query", query), slog.Int("top_k", opts.topK))
	results, err := a.engine.Retrieve(ctx, search.Query{
		Text:         query,
		TopK:         opts.topK,
		LexicalLimit: opts.lexicalLimit,
		VectorLimit:  opts.vectorLimit,
	})
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if opts.jsonOutput {
		return out.JSON(results)
	}
	out.Results(query, results)
	return nil
}
