package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/rapidbin"
	"github.com/roach88/rapidtrace/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	RunID    string
	Thread   int    // -1 matches every thread
	Op       string // optional op mnemonic filter
}

// ShowRunResult is the JSON payload of show --run.
type ShowRunResult struct {
	Run   store.Run `json:"run"`
	Lines []string  `json:"lines"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List archived runs or print a run's events",
		Long: `Without --run, list every archived run in archive order.
With --run, print the run's events as text lines, optionally narrowed
to one thread or one op (acq, rel, req, r, w, fork, join).

Examples:
  rapidtrace show --db ./traces.db
  rapidtrace show --db ./traces.db --run 0192... --thread 1
  rapidtrace show --db ./traces.db --run 0192... --op acq --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	cmd.Flags().IntVar(&opts.Thread, "thread", -1, "only events of this thread")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only events with this op")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.logger()

	filter, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, err := store.Open(opts.Database, store.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", zap.Error(closeErr))
		}
	}()

	if opts.RunID == "" {
		return showRuns(ctx, opts, st, cmd)
	}
	return showEvents(ctx, opts, st, filter, cmd)
}

func (o *ShowOptions) filter() (store.EventFilter, error) {
	var f store.EventFilter
	if o.Thread >= 0 {
		if o.Thread >= rapidbin.MaxThreads {
			return f, fmt.Errorf("thread %d out of range", o.Thread)
		}
		t := uint16(o.Thread)
		f.Thread = &t
	}
	if o.Op != "" {
		op, err := event.ParseOp(o.Op)
		if err != nil {
			return f, err
		}
		f.Op = &op
	}
	return f, nil
}

func showRuns(ctx context.Context, opts *ShowOptions, st *store.Store, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs archived.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tNAME\tTHREADS\tLOCKS\tREGIONS\tEVENTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.Seq, r.ID, r.Name, r.Header.Threads, r.Header.Locks, r.Header.Regions, r.Header.Events)
	}
	return tw.Flush()
}

func showEvents(ctx context.Context, opts *ShowOptions, st *store.Store, filter store.EventFilter, cmd *cobra.Command) error {
	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run", err)
	}

	records, err := st.ReadEvents(ctx, run.ID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(ShowRunResult{Run: run, Lines: lines})
	}

	out.VerboseLog("%s", strings.TrimSuffix(run.Header.Summary(), "\n"))
	w := cmd.OutOrStdout()
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}
