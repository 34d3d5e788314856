package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
)

func newStatusCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus counts and index signature",
		Long: `Display table counts, the mutation version and whether the stored
index signature matches the running embedder and chunk settings.
Status never rebuilds; run 'amanrag reindex' for that.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			info := output.StatusInfo{
				Store:   a.repo.Identity(),
				Current: a.tracker.Current(),
			}
			if info.Counts, err = a.repo.Counts(ctx); err != nil {
				return err
			}
			if info.MutationVersion, err = a.repo.MutationVersion(ctx); err != nil {
				return err
			}
			stored, ok, err := index.ReadSignature(ctx, a.repo)
			if err != nil {
				return err
			}
			if ok {
				info.Stored = &stored
				info.Compatible = stored.EmbeddingEqual(info.Current)
			} else {
				info.Compatible = info.Counts.Chunks == 0
			}

			if jsonOutput {
				return out.JSON(info)
			}
			out.CorpusStatus(info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDocsCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.repo.ListDocuments(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return out.JSON(docs)
			}
			out.Documents(docs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newEventsCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "events [doc_id]",
		Short: "Show ingest lineage, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			docID := ""
			if len(args) == 1 {
				docID = args[0]
			}
			events, err := a.repo.ListEvents(ctx, docID, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return out.JSON(events)
			}
			out.Events(events)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
