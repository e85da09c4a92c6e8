package scenario

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its text trace against a
// golden file stored in testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/scenario -update
//
// Only sequential scenarios produce a stable trace. Returns error if scenario
// execution fails; a trace mismatch fails the test through goldie.
func RunWithGolden(t *testing.T, s *Scenario, opts ...RunOption) (*Result, error) {
	t.Helper()

	result, err := Run(s, opts...)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, s.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's text trace against the golden
// file for name.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, NormalizeName(name), []byte(renderLines(result.Lines)))
}

func renderLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
