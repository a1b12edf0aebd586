package rollout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envprobe/internal/env"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("random", 1)
	require.NoError(t, err)
	assert.Equal(t, PolicyRandom, p.Name())

	p, err = ParsePolicy("zero", 1)
	require.NoError(t, err)
	assert.Equal(t, PolicyZero, p.Name())

	_, err = ParsePolicy("greedy", 1)
	require.Error(t, err)
	assert.True(t, env.IsConfiguration(err))
	assert.Contains(t, err.Error(), `"greedy"`)
}

func TestRandomSample_WithinBounds(t *testing.T) {
	spec := env.Spec{ActionDim: 4, ObservationDim: 1, ActionLow: -0.4, ActionHigh: 0.2}
	p := RandomSample(3)

	for i := 0; i < 500; i++ {
		action := p.Action(spec)
		require.Len(t, action, 4)
		for _, v := range action {
			assert.GreaterOrEqual(t, v, -0.4)
			assert.Less(t, v, 0.2)
		}
	}
}

func TestRandomSample_SeedDeterminesSequence(t *testing.T) {
	spec := env.Spec{ActionDim: 3, ObservationDim: 1}
	a, b := RandomSample(11), RandomSample(11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Action(spec), b.Action(spec))
	}
	assert.NotEqual(t, RandomSample(12).Action(spec), RandomSample(11).Action(spec))
}

func TestFixedVector(t *testing.T) {
	spec := env.Spec{ActionDim: 2, ObservationDim: 1}
	v := []float64{0.5, -0.5}
	p := FixedVector(v)
	require.NoError(t, p.Validate(spec))

	action := p.Action(spec)
	assert.Equal(t, v, action)

	// Callers may not mutate the policy through the returned slice.
	action[0] = 9
	assert.Equal(t, v, p.Action(spec))

	assert.True(t, env.IsConfiguration(p.Validate(env.Spec{ActionDim: 3, ObservationDim: 1})))
}

func TestZero(t *testing.T) {
	p := Zero()
	assert.Equal(t, []float64{0, 0, 0}, p.Action(env.Spec{ActionDim: 3, ObservationDim: 1}))
	assert.NoError(t, p.Validate(env.Spec{ActionDim: 5, ObservationDim: 1}))
}
