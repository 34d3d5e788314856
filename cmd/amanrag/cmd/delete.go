package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
)

func newDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc_id>...",
		Short: "Remove documents with their chunks and embeddings",
		Long:  `Remove documents from the corpus. Lineage events are kept.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.pipeline.Delete(ctx, id); err != nil {
					return err
				}
				out.Successf("Deleted %s", id)
			}
			return nil
		},
	}
}

func newTagCmd(g *globalOptions) *cobra.Command {
	var (
		classification string
		retention      string
		tags           []string
	)

	cmd := &cobra.Command{
		Use:   "tag <doc_id>",
		Short: "Replace a document's classification, retention and tags",
		Long: `Update document metadata without re-ingesting content. Omitted
classification or retention take their defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			md, err := index.NormalizeMetadata(ingestOptions{
				classification: classification,
				retention:      retention,
				tags:           tags,
			}.metadata())
			if err != nil {
				return err
			}
			if err := a.pipeline.UpdateMetadata(ctx, args[0], md); err != nil {
				return err
			}
			out.Successf("Updated %s (%s, %s) [%s]", args[0], md.Classification, md.Retention, strings.Join(md.Tags, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&classification, "classification", "", "public, internal, confidential or restricted")
	cmd.Flags().StringVar(&retention, "retention", "", "ephemeral, standard, extended or permanent")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag to attach (repeatable)")

	return cmd
}
