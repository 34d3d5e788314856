// Package cmd provides the amanrag CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir     string
	debug   bool
	verbose bool
	profile profiling.Options

	profiler *profiling.Session
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Hybrid lexical and vector retrieval over local documents",
		Long: `amanrag ingests text, PDF and tabular documents into an embedded corpus
and answers queries by combining full-text and embedding similarity.

Configuration is read from .amanrag.yaml in the working directory,
~/.config/amanrag/config.yaml and AMANRAG_* environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Project directory holding .amanrag.yaml")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Also write logs to stderr")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Mem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		if !g.profile.Enabled() {
			return nil
		}
		s, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = s
		return nil
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if g.profiler == nil {
			return nil
		}
		return g.profiler.Stop()
	}

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newReindexCmd(g))
	cmd.AddCommand(newReplayCmd(g))
	cmd.AddCommand(newDeleteCmd(g))
	cmd.AddCommand(newTagCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDocsCmd(g))
	cmd.AddCommand(newEventsCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware cancellation and prints
// failures in the CLI error format.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		if _, ok := amerrors.As(err); ok {
			fmt.Fprintln(os.Stderr, amerrors.FormatForCLI(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		slog.Debug("command_failed", slog.String("error", err.Error()))
	}
	return err
}
