package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var (
		extensions  []string
		skipInitial bool
	)

	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Ingest a folder and keep the corpus in sync with it",
		Long: `Ingest every file under the folder, then watch it. Created and modified
files are ingested in debounced batches; removed files are deleted from
the corpus. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
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

			opts := a.folderOptions(index.FileOptions{})
			opts.Extensions = extensions

			if !skipInitial {
				sum, err := a.pipeline.IngestFolder(ctx, args[0], opts)
				if err != nil {
					return err
				}
				out.Run(sum)
			}

			debounce, _ := a.cfg.WatchDebounce()
			w, err := watcher.NewFolderWatcher(watcher.Options{
				DebounceWindow: debounce,
				Extensions:     extensions,
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case err := <-w.Errors():
						slog.Warn("watch_error", slog.String("error", err.Error()))
					}
				}
			}()

			syncer := watcher.NewSyncer(a.pipeline, opts, a.logger)
			go func() {
				_ = syncer.Run(ctx, w.Events(), func(sum *index.RunSummary) { out.Run(sum) })
			}()

			out.Statusf("👀", "Watching %s (Ctrl-C to stop)", args[0])
			if err := w.Start(ctx, args[0]); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Only ingest these extensions (e.g. .md,.pdf)")
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "Skip the initial folder ingest")
	return cmd
}
