package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/scenario"
	"github.com/roach88/rapidtrace/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Out      string // binary trace output path
	Database string // optional archive

	// IDGenerator overrides archive run ids (for testing).
	IDGenerator store.IDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	*scenario.Result
	Out   string     `json:"out,omitempty"`
	RunID string     `json:"run_id,omitempty"`
	Saved *bool      `json:"saved,omitempty"`
	Run   *store.Run `json:"-"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Execute a workload scenario and capture its trace",
		Long: `Execute a workload scenario (.yaml or .cue) on instrumented threads
and locks, then encode the captured events as a binary trace.

The text trace is printed; --out writes the binary trace and --db archives
it in a SQLite database under the scenario name.

Exit codes:
  0 - Scenario ran and all assertions held
  1 - One or more assertions failed
  2 - Command error (invalid scenario, unwritable output, etc.)

Examples:
  rapidtrace run scenarios/counter.yaml
  rapidtrace run scenarios/counter.yaml --out counter.bin
  rapidtrace run scenarios/handoff.cue --db ./traces.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the binary trace to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the trace in this SQLite database")

	return cmd
}

func runScenarioCommand(opts *RunOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)
	log := opts.logger()

	s, err := scenario.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	result, err := scenario.Run(s, scenario.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	log.Info("scenario captured",
		zap.String("scenario", s.Name),
		zap.Uint64("events", result.Header.Events),
		zap.Bool("pass", result.Pass),
	)

	resp := RunResult{Result: result}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, result.Binary, 0644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write trace", err)
		}
		resp.Out = opts.Out
	}

	if opts.Database != "" {
		run, created, err := archive(ctx, opts.Database, s.Name, result.Binary, opts.IDGenerator, log)
		if err != nil {
			return err
		}
		resp.RunID = run.ID
		resp.Saved = &created
		resp.Run = &run
	}

	if opts.Format == "json" {
		if err := out.Success(resp); err != nil {
			return err
		}
	} else {
		writeRunText(cmd, resp)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s: %d assertion(s) failed", s.Name, len(result.Errors)))
	}
	return nil
}

func writeRunText(cmd *cobra.Command, resp RunResult) {
	w := cmd.OutOrStdout()
	for _, line := range resp.Lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	if resp.Out != "" {
		fmt.Fprintf(w, "Wrote %d bytes to %s\n", len(resp.Binary), resp.Out)
	}
	if resp.Run != nil {
		verb := "Archived"
		if resp.Saved != nil && !*resp.Saved {
			verb = "Already archived"
		}
		fmt.Fprintf(w, "%s as run %s\n", verb, resp.Run.ID)
	}
	if resp.Pass {
		fmt.Fprintf(w, "✓ %s\n", resp.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", resp.Name)
	for _, e := range resp.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// archive opens the database, saves one trace and closes it.
func archive(ctx context.Context, path, name string, data []byte, gen store.IDGenerator, log *zap.Logger) (store.Run, bool, error) {
	storeOpts := []store.Option{store.WithLogger(log)}
	if gen != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(gen))
	}

	st, err := store.Open(path, storeOpts...)
	if err != nil {
		return store.Run{}, false, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", zap.Error(closeErr))
		}
	}()

	run, created, err := st.SaveRun(ctx, name, data)
	if err != nil {
		return store.Run{}, false, WrapExitError(ExitCommandError, "failed to archive trace", err)
	}
	return run, created, nil
}
