package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/rapidbin"
)

// DecodeResult is the JSON payload of the decode command.
type DecodeResult struct {
	Header rapidbin.Header `json:"header"`
	Lines  []string        `json:"lines"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <trace.bin>",
		Short: "Print a binary trace as text",
		Long: `Decode a binary trace and print one line per event:

  T<thread>|<op>(<operand>)|<location>

Operands are V<id> for memory regions, L<id> for locks and T<id> for
threads. A truncated or corrupt trace prints nothing but the error and
exits 1.

Examples:
  rapidtrace decode trace.bin
  rapidtrace decode trace.bin --verbose
  rapidtrace decode trace.bin --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDecode(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	log := opts.logger()

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	log.Debug("decoding trace", zap.String("path", path), zap.Int("bytes", len(data)))

	tr, err := rapidbin.Decode(data)
	if err != nil {
		return reportFormatError(out, "failed to decode trace", err)
	}

	if opts.Format == "json" {
		return out.Success(DecodeResult{Header: tr.Header, Lines: tr.Lines()})
	}

	out.VerboseLog("%s", strings.TrimSuffix(tr.Header.Summary(), "\n"))
	if err := tr.WriteText(cmd.OutOrStdout()); err != nil {
		return WrapExitError(ExitCommandError, "failed to write trace", err)
	}
	return nil
}

// reportFormatError prints a codec error and returns the matching exit
// error. Format errors exit 1; anything else is a command error.
func reportFormatError(out *OutputFormatter, message string, err error) error {
	var fe *rapidbin.FormatError
	if !errors.As(err, &fe) {
		return WrapExitError(ExitCommandError, message, err)
	}

	details := map[string]any{
		"code":     string(fe.Code),
		"field":    fe.Field,
		"index":    fe.Index,
		"expected": fe.Expected,
		"actual":   fe.Actual,
	}
	if out.Format == "json" {
		if werr := out.Error(CodeCorruptTrace, fe.Error(), details); werr != nil {
			return werr
		}
	} else {
		fmt.Fprintf(out.GetErrWriter(), "Error [%s]: %s\n", CodeCorruptTrace, fe.Error())
	}
	return WrapExitError(ExitFailure, message, err)
}
