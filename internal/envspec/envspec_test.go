package envspec

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/hopper"
)

func TestCompileBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		environment: "Walker-v1": {
			action_dim: 6
			observation_dim: 22
			max_episode_steps: 500
			reward_threshold: 2500
			render_modes: ["rgb_array"]
			render_fps: 60
			action_bounds: {low: -0.5, high: 0.5}
			reward_components: ["alive", "progress"]
		}
	`)
	require.NoError(t, v.Err())

	spec, err := Compile(v.LookupPath(cue.ParsePath(`environment."Walker-v1"`)))
	require.NoError(t, err)

	assert.Equal(t, "Walker-v1", spec.ID)
	assert.Equal(t, 6, spec.ActionDim)
	assert.Equal(t, 22, spec.ObservationDim)
	assert.Equal(t, 500, spec.MaxEpisodeSteps)
	assert.Equal(t, 2500.0, spec.RewardThreshold)
	assert.Equal(t, []string{"rgb_array"}, spec.RenderModes)
	assert.Equal(t, 60, spec.RenderFPS)
	assert.Equal(t, -0.5, spec.ActionLow)
	assert.Equal(t, 0.5, spec.ActionHigh)
	assert.Equal(t, []string{"alive", "progress"}, spec.RewardComponents)
	assert.Nil(t, spec.ObservationLabels)
}

func TestCompileMissingActionDim(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		environment: Bad: {
			observation_dim: 4
		}
	`)
	require.NoError(t, v.Err())

	_, err := Compile(v.LookupPath(cue.ParsePath("environment.Bad")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "action_dim", ce.Field)
	assert.Contains(t, ce.Message, "required")
}

func TestCompileWrongType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		environment: Bad: {
			action_dim: "three"
			observation_dim: 4
		}
	`)
	require.NoError(t, v.Err())

	_, err := Compile(v.LookupPath(cue.ParsePath("environment.Bad")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "action_dim", ce.Field)
	assert.True(t, ce.Pos.IsValid())
}

func TestCompileZeroDimensionIsConfigurationError(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		environment: Empty: {
			action_dim: 0
			observation_dim: 4
		}
	`)
	require.NoError(t, v.Err())

	_, err := Compile(v.LookupPath(cue.ParsePath("environment.Empty")))
	require.Error(t, err)
	assert.True(t, env.IsConfiguration(err))
}

func TestLoadFile(t *testing.T) {
	specs, err := LoadFile(filepath.Join("testdata", "hopper.cue"))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec, err := Lookup(specs, hopper.ID)
	require.NoError(t, err)
	assert.Empty(t, Compare(spec, hopper.Spec()))
}

func TestLoadDir(t *testing.T) {
	specs, err := Load("testdata")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, hopper.ID, specs[0].ID)
}

func TestLoadFile_NoEnvironments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cue")
	require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0o644))

	_, err := LoadFile(path)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "environment", ce.Field)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup([]env.Spec{hopper.Spec()}, "Ant-v0")
	require.Error(t, err)
	assert.True(t, env.IsConfiguration(err))
	assert.Contains(t, err.Error(), `"Ant-v0"`)
}

func TestCompare(t *testing.T) {
	declared := hopper.Spec()
	actual := hopper.Spec()
	actual.ObservationDim = 11
	actual.RenderModes = []string{"rgb_array", "human"}
	actual.RenderFPS = 60

	drift := Compare(declared, actual)
	require.Len(t, drift, 2)
	assert.Contains(t, drift[0], "observation_dim: declared 15")
	assert.Contains(t, drift[1], "render_fps")
}

func TestCompare_OptionalFieldsIgnored(t *testing.T) {
	declared := env.Spec{ActionDim: 3, ObservationDim: 15}
	assert.Empty(t, Compare(declared, hopper.Spec()))
}
