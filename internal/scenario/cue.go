package scenario

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// ParseError reports a CUE scenario that does not compile or does not
// satisfy the #Scenario schema.
type ParseError struct {
	Message string
	Pos     token.Pos // CUE position if available
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// parseCUE compiles data, unifies it with #Scenario and decodes the result.
func parseCUE(path string, data []byte) (*Scenario, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var s Scenario
	if err := unified.Decode(&s); err != nil {
		return nil, formatCUEError(err)
	}
	return &s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ParseError{Message: err.Error()}
	}

	// Report the first error; prefer a position inside the scenario file over
	// one inside the embedded schema.
	first := errs[0]
	positions := errors.Positions(first)
	pe := &ParseError{Message: first.Error()}
	for _, pos := range positions {
		if pos.Filename() != "schema.cue" {
			pe.Pos = pos
			break
		}
	}
	if !pe.Pos.IsValid() && len(positions) > 0 {
		pe.Pos = positions[0]
	}
	return pe
}
