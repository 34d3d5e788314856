package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	title          string
	source         string
	stdin          bool
	classification string
	retention      string
	tags           []string
	contractPath   string
	force          bool
	extensions     []string
	jsonOutput     bool
}

func (o ingestOptions) metadata() store.Metadata {
	return store.Metadata{Classification: o.classification, Retention: o.retention, Tags: o.tags}
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Ingest files, folders or stdin into the corpus",
		Long: `Ingest documents. Text, Markdown, PDF and CSV/TSV files are supported.
A CSV/TSV file is validated against --contract or a sidecar such as
data.csv.contract.yaml when present.

Unchanged content is skipped unless --force is given.`,
		Example: `  amanrag ingest docs/
  amanrag ingest report.pdf --classification confidential --tag finance
  amanrag ingest sales.csv --contract sales.contract.yaml
  echo "text" | amanrag ingest --stdin --title "Note" --source clipboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.stdin {
				if len(args) > 0 {
					return fmt.Errorf("--stdin takes no path arguments")
				}
			} else if len(args) == 0 {
				return fmt.Errorf("requires at least one path or --stdin")
			}
			return runIngest(cmd, g, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (single file or stdin; defaults to the file name)")
	cmd.Flags().StringVar(&opts.source, "source", "stdin", "Document source for --stdin")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "Read one document from standard input")
	cmd.Flags().StringVar(&opts.classification, "classification", "", "public, internal, confidential or restricted")
	cmd.Flags().StringVar(&opts.retention, "retention", "", "ephemeral, standard, extended or permanent")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag to attach (repeatable)")
	cmd.Flags().StringVar(&opts.contractPath, "contract", "", "Tabular contract (YAML or JSON) for CSV/TSV input")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Reprocess even when content is unchanged")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Only ingest these extensions from folders (e.g. .md,.pdf)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, g *globalOptions, args []string, opts ingestOptions) error {
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

	fo := index.FileOptions{Title: opts.title, Metadata: opts.metadata(), Force: opts.force}
	if opts.contractPath != "" {
		if fo.Contract, err = os.ReadFile(opts.contractPath); err != nil {
			return fmt.Errorf("read contract: %w", err)
		}
	}

	if opts.stdin {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		req := index.IngestRequest{
			Title:    opts.title,
			Source:   opts.source,
			Content:  string(content),
			Metadata: fo.Metadata,
			Contract: fo.Contract,
			Force:    opts.force,
		}
		// A contract marks stdin as a table.
		if len(fo.Contract) > 0 {
			req.ContentType = store.ContentTabular
		}
		res, err := a.pipeline.Ingest(ctx, req)
		if err != nil {
			return err
		}
		return reportIngested(out, opts, opts.title, res)
	}

	if len(args) == 1 {
		info, err := os.Stat(args[0])
		if err == nil && !info.IsDir() {
			res, err := a.pipeline.IngestFile(ctx, args[0], a.folderOptions(fo).FileOptions)
			if err != nil {
				return err
			}
			return reportIngested(out, opts, args[0], res)
		}
	}

	paths, err := expandPaths(args, opts.extensions)
	if err != nil {
		return err
	}
	sum, err := a.pipeline.IngestFiles(ctx, paths, store.RunKindIngest, a.folderOptions(fo))
	if err != nil {
		return err
	}
	return reportRun(out, opts.jsonOutput, sum)
}

// expandPaths replaces folders with the files CollectFiles finds in them.
func expandPaths(args, extensions []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := index.CollectFiles(arg, extensions)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func reportIngested(out *output.Writer, opts ingestOptions, title string, res *index.IngestResult) error {
	if opts.jsonOutput {
		return out.JSON(res)
	}
	out.Ingested(title, res)
	return nil
}

// reportRun prints a batch summary and fails the command when any document failed.
func reportRun(out *output.Writer, jsonOutput bool, sum *index.RunSummary) error {
	if jsonOutput {
		if err := out.JSON(sum); err != nil {
			return err
		}
	} else {
		out.Run(sum)
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", sum.Failed, sum.Seen)
	}
	return nil
}
