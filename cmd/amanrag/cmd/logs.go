package cmd

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/logging"
)

type logsOptions struct {
	follow bool
	lines  int
	level  string
	filter string
	file   string
}

func newLogsCmd(g *globalOptions) *cobra.Command {
	opts := &logsOptions{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or follow the amanrag log file",
		Long: `Show the last lines of the structured log written by ingest, search and
watch. Use --follow to stream new entries until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, g, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Stream new entries")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regular expression")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default: configured or ~/.amanrag/logs/amanrag.log)")
	return cmd
}

func runLogs(cmd *cobra.Command, g *globalOptions, opts *logsOptions) error {
	path := opts.file
	if path == "" {
		cfg, _, err := loadConfig(g)
		if err != nil {
			return err
		}
		path = cfg.Logging.File
		if path == "" {
			path = logging.DefaultLogPath()
		}
	}

	vc := logging.ViewerConfig{Level: opts.level}
	if opts.filter != "" {
		re, err := regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
		vc.Pattern = re
	}
	viewer := logging.NewViewer(vc, cmd.OutOrStdout())

	entries, err := viewer.Tail(path, opts.lines)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no log file at %s", path)
	}
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !opts.follow {
		return nil
	}

	stream := make(chan logging.LogEntry, 64)
	done := make(chan error, 1)
	go func() {
		done <- viewer.Follow(cmd.Context(), path, stream)
		close(stream)
	}()
	for e := range stream {
		viewer.Print([]logging.LogEntry{e})
	}
	return <-done
}
