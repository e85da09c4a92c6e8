package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_YAML(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/counter.yaml")
	require.NoError(t, err)

	assert.Equal(t, "counter", s.Name)
	assert.Equal(t, ModeSequential, s.Mode)
	require.Len(t, s.Workers, 2)
	assert.Equal(t, "inc-a", s.Workers[0].Name)
	assert.Equal(t, Step{Op: StepRead, Addr: 16, Len: 8}, s.Workers[0].Steps[1])
	assert.Len(t, s.Main, 3)
	require.Len(t, s.Assertions, 5)
	require.NotNil(t, s.Assertions[3].Thread)
	assert.Equal(t, uint16(0), *s.Assertions[3].Thread)
}

func TestLoadScenario_CUE(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/handoff.cue")
	require.NoError(t, err)

	assert.Equal(t, "handoff", s.Name)
	require.Len(t, s.Workers, 2)
	assert.Equal(t, "consumer", s.Workers[1].Name)
	assert.Equal(t, Step{Op: StepLock, Lock: "q"}, s.Workers[1].Steps[0])
	assert.Equal(t, []string{"T1|w(V0)|2", "T2|r(V0)|7"}, s.Assertions[0].Lines)
}

func TestLoadScenario_CUEDefaultsMode(t *testing.T) {
	path := writeFile(t, t.TempDir(), "s.cue", `
name:        "defaults"
description: "mode falls back to sequential"
workers: [{name: "w", steps: []}]
assertions: [{type: "lock_bracketing"}]
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, s.Mode)
}

func TestLoadScenario_CUESchemaViolation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", `
name:        "bad"
description: "op is not in the enum"
workers: [{
	name: "w"
	steps: [{op: "sleep"}]
}]
assertions: [{type: "lock_bracketing"}]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)

	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestLoadScenario_CUEUnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "typo.cue", `
name:        "typo"
description: "assertion is misspelled"
workers: [{name: "w", steps: []}]
assertion: [{type: "lock_bracketing"}]
`)
	_, err := LoadScenario(path)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestLoadScenario_CUESyntaxError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "syntax.cue", `name: {`)
	_, err := LoadScenario(path)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownYAMLField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "typo.yaml", `
name: typo
description: "misspelled key"
workers:
  - name: w
    steps: []
assertion:
  - type: lock_bracketing
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_NormalizesName(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nfc.yaml", "name: \" cafe\u0301 \"\n"+`description: "decomposed accent"
workers:
  - name: w
    steps: []
assertions:
  - type: lock_bracketing
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", s.Name)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "caf\u00e9", NormalizeName("cafe\u0301"))
	assert.Equal(t, NormalizeName("caf\u00e9"), NormalizeName("cafe\u0301"))
	assert.Equal(t, "plain", NormalizeName("  plain\n"))
}

func validScenario() *Scenario {
	return &Scenario{
		Name:        "valid",
		Description: "valid scenario",
		Workers: []Worker{{
			Name: "w",
			Steps: []Step{
				{Op: StepLock, Lock: "m"},
				{Op: StepWrite, Addr: 8, Len: 8},
				{Op: StepUnlock, Lock: "m"},
			},
		}},
		Assertions: []Assertion{{Type: AssertLockBracketing}},
	}
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Scenario)
		errMsg string
	}{
		{"valid", func(s *Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"bad mode", func(s *Scenario) { s.Mode = "parallel" }, `unknown mode "parallel"`},
		{"no workers", func(s *Scenario) { s.Workers = nil }, "workers list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"unnamed worker", func(s *Scenario) { s.Workers[0].Name = "" }, "workers[0]: name is required"},
		{"duplicate worker", func(s *Scenario) {
			s.Workers = append(s.Workers, Worker{Name: "w"})
		}, `workers[1]: duplicate name "w"`},
		{"unknown op", func(s *Scenario) { s.Workers[0].Steps[1].Op = "sleep" }, `unknown op "sleep"`},
		{"zero length", func(s *Scenario) { s.Workers[0].Steps[1].Len = 0 }, "len must be positive"},
		{"relock", func(s *Scenario) {
			s.Workers[0].Steps[1] = Step{Op: StepLock, Lock: "m"}
		}, `workers[0].steps[1]: lock "m" is already held`},
		{"unlock not held", func(s *Scenario) {
			s.Main = []Step{{Op: StepUnlock, Lock: "m"}}
		}, `main.steps[0]: lock "m" is not held`},
		{"lock leaked", func(s *Scenario) {
			s.Workers[0].Steps = s.Workers[0].Steps[:2]
		}, "locks still held at end: [m]"},
		{"unnamed lock", func(s *Scenario) { s.Workers[0].Steps[0].Lock = "" }, "lock name is required"},
		{"assertion without type", func(s *Scenario) {
			s.Assertions = []Assertion{{}}
		}, "assertions[0]: type is required"},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "final_state"}}
		}, `unknown assertion type "final_state"`},
		{"contains without line", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceContains}}
		}, "line is required"},
		{"order without lines", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceOrder}}
		}, "lines list is required"},
		{"count with bad op", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertEventCount, Op: "lock"}}
		}, `unknown op "lock"`},
		{"negative count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertEventCount, Op: "acq", Count: -1}}
		}, "count must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "contention.yaml"),
		filepath.Join("testdata", "scenarios", "counter.yaml"),
		filepath.Join("testdata", "scenarios", "handoff.cue"),
	}, files)
}
