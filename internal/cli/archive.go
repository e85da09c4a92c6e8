package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/rapidbin"
	"github.com/roach88/rapidtrace/internal/store"
)

// ArchiveOptions holds flags for the archive command.
type ArchiveOptions struct {
	*RootOptions
	Database string
	Name     string

	// IDGenerator overrides run ids (for testing).
	IDGenerator store.IDGenerator
}

// ArchiveResult is the JSON payload of the archive command.
type ArchiveResult struct {
	Run     store.Run `json:"run"`
	Created bool      `json:"created"`
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive <trace.bin>",
		Short: "Store a binary trace in a SQLite archive",
		Long: `Decode a binary trace and store it, with its decoded events, in a
SQLite archive. Archiving the same bytes twice returns the existing run.

The run name defaults to the file name without its extension.

Examples:
  rapidtrace archive counter.bin --db ./traces.db
  rapidtrace archive counter.bin --db ./traces.db --name nightly-counter`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Name, "name", "", "run name (defaults to the file name)")

	return cmd
}

func runArchive(opts *ArchiveOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)
	log := opts.logger()

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if _, err := rapidbin.Decode(data); err != nil {
		return reportFormatError(out, "failed to decode trace", err)
	}

	name := opts.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	run, created, err := archive(ctx, opts.Database, name, data, opts.IDGenerator, log)
	if err != nil {
		return err
	}
	log.Info("trace archived", zap.String("run", run.ID), zap.Bool("created", created))

	if opts.Format == "json" {
		return out.Success(ArchiveResult{Run: run, Created: created})
	}

	w := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(w, "Archived %s as run %s (%d events)\n", name, run.ID, run.Header.Events)
	} else {
		fmt.Fprintf(w, "Already archived as run %s (%s)\n", run.ID, run.Name)
	}
	return nil
}
