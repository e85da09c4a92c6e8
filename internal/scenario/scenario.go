package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rapidtrace/internal/event"
)

// Scenario is a workload definition.
type Scenario struct {
	// Name uniquely identifies this scenario. It keys the golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description" json:"description"`

	// Mode is ModeSequential (default) or ModeConcurrent.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Workers are spawned by the main thread in list order.
	Workers []Worker `yaml:"workers" json:"workers"`

	// Main steps run on the main thread after every worker is joined.
	Main []Step `yaml:"main,omitempty" json:"main,omitempty"`

	// Assertions validate the decoded trace.
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// Worker is one spawned thread.
type Worker struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one traced operation.
type Step struct {
	// Op is one of lock, unlock, read, write.
	Op string `yaml:"op" json:"op"`

	// Lock names the mutex (lock, unlock).
	Lock string `yaml:"lock,omitempty" json:"lock,omitempty"`

	// Addr and Len describe the memory region (read, write).
	Addr uint64 `yaml:"addr,omitempty" json:"addr,omitempty"`
	Len  uint64 `yaml:"len,omitempty" json:"len,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type" json:"type"`

	// Line is the expected text line (trace_contains).
	Line string `yaml:"line,omitempty" json:"line,omitempty"`

	// Lines are the expected lines in order (trace_order).
	Lines []string `yaml:"lines,omitempty" json:"lines,omitempty"`

	// Op is the op mnemonic to count (event_count).
	Op string `yaml:"op,omitempty" json:"op,omitempty"`

	// Thread restricts event_count to one encoded thread id.
	Thread *uint16 `yaml:"thread,omitempty" json:"thread,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty" json:"count,omitempty"`
}

// Execution modes.
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

// Step ops.
const (
	StepLock   = "lock"
	StepUnlock = "unlock"
	StepRead   = "read"
	StepWrite  = "write"
)

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertEventCount     = "event_count"
	AssertLockBracketing = "lock_bracketing"
)

// NormalizeName returns the NFC form of a scenario name without surrounding
// space. Names that differ only in Unicode composition map to the same golden
// file.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// LoadScenario reads and parses a scenario file. The format follows the
// extension: .cue is CUE, anything else is YAML.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s *Scenario
	if filepath.Ext(path) == ".cue" {
		s, err = parseCUE(path, data)
	} else {
		s, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	s.Name = NormalizeName(s.Name)
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

func parseYAML(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// FindScenarios returns every .yaml, .yml and .cue file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".cue":
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// validateScenario checks that required fields are present and that every
// step sequence keeps its locks balanced.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Mode {
	case "", ModeSequential, ModeConcurrent:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}

	if len(s.Workers) == 0 {
		return fmt.Errorf("workers list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Workers))
	for i, w := range s.Workers {
		if w.Name == "" {
			return fmt.Errorf("workers[%d]: name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("workers[%d]: duplicate name %q", i, w.Name)
		}
		seen[w.Name] = true
		if err := validateSteps(fmt.Sprintf("workers[%d]", i), w.Steps); err != nil {
			return err
		}
	}

	if err := validateSteps("main", s.Main); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateSteps rejects steps that would deadlock or misuse a lock: the
// mutex is not reentrant and must be unlocked by its holder.
func validateSteps(where string, steps []Step) error {
	held := make(map[string]bool)
	for i, st := range steps {
		switch st.Op {
		case StepLock:
			if st.Lock == "" {
				return fmt.Errorf("%s.steps[%d]: lock name is required", where, i)
			}
			if held[st.Lock] {
				return fmt.Errorf("%s.steps[%d]: lock %q is already held", where, i, st.Lock)
			}
			held[st.Lock] = true
		case StepUnlock:
			if st.Lock == "" {
				return fmt.Errorf("%s.steps[%d]: lock name is required", where, i)
			}
			if !held[st.Lock] {
				return fmt.Errorf("%s.steps[%d]: lock %q is not held", where, i, st.Lock)
			}
			delete(held, st.Lock)
		case StepRead, StepWrite:
			if st.Len == 0 {
				return fmt.Errorf("%s.steps[%d]: len must be positive for %s", where, i, st.Op)
			}
		default:
			return fmt.Errorf("%s.steps[%d]: unknown op %q", where, i, st.Op)
		}
	}
	if len(held) > 0 {
		names := make([]string, 0, len(held))
		for name := range held {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("%s: locks still held at end: %v", where, names)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines list is required for trace_order", index)
		}
	case AssertEventCount:
		if _, err := event.ParseOp(a.Op); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertLockBracketing:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
