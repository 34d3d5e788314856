package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/preflight"
)

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check disk, store, embedder and index health",
		Long: `Run health checks without modifying the corpus: free disk and write
access for the store directory, embedder reachability, store access, and
whether the stored index signature matches the running configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			target := preflight.Target{
				Embedder: a.embedder,
				Repo:     a.repo,
				Current:  a.tracker.Current(),
			}
			if a.cfg.Store.Driver == "sqlite" {
				path := a.cfg.Store.Path
				if !filepath.IsAbs(path) {
					path = filepath.Join(a.dir, path)
				}
				target.StorePath = path
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(ctx, target)
			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&verbose, "details", false, "List every check in the summary")
	return cmd
}
