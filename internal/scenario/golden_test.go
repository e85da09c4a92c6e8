package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/counter.yaml",
		"testdata/scenarios/handoff.cue",
	} {
		s := load(t, path)
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRenderLines(t *testing.T) {
	assert.Equal(t, "", renderLines(nil))
	assert.Equal(t, "a\nb\n", renderLines([]string{"a", "b"}))
}
