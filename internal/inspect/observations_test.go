package inspect

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/hopper"
	"github.com/roach88/envprobe/internal/rollout"
)

func testSpec() env.Spec {
	return env.Spec{
		ActionDim:         2,
		ObservationDim:    3,
		ObservationLabels: []string{"height", "pitch"},
	}
}

func TestObservations_Valid(t *testing.T) {
	steps := []rollout.StepRecord{
		{Action: []float64{0, 0}, Observation: []float64{1, 2, 3}},
		{Action: []float64{0, 0}, Observation: []float64{-1, 5, 0}},
	}

	report := Observations(testSpec(), steps)
	assert.Equal(t, StatusPass, report.Status)
	assert.Equal(t, 2, report.StepsChecked)

	require.Len(t, report.Labeled, 3)
	assert.Equal(t, LabeledValue{Index: 0, Label: "height", Value: 1}, report.Labeled[0])
	assert.Equal(t, "", report.Labeled[2].Label)

	require.Len(t, report.Ranges, 3)
	assert.Equal(t, Range{Index: 0, Label: "height", Min: -1, Max: 1}, report.Ranges[0])
	assert.Equal(t, Range{Index: 1, Label: "pitch", Min: 2, Max: 5}, report.Ranges[1])
}

func TestObservations_DimensionMismatch(t *testing.T) {
	steps := []rollout.StepRecord{
		{Action: []float64{0}, Observation: []float64{1, 2}},
	}

	report := Observations(testSpec(), steps)
	assert.Equal(t, StatusMismatch, report.Status)
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, "observation", report.Mismatches[0].Field)
	assert.Equal(t, "length 3", report.Mismatches[0].Expected)
	assert.Equal(t, "action", report.Mismatches[1].Field)
}

func TestObservations_NonFinite(t *testing.T) {
	steps := []rollout.StepRecord{
		{Action: []float64{0, 0}, Observation: []float64{1, math.NaN(), math.Inf(-1)}},
		{Action: []float64{0, 0}, Observation: []float64{2, 3, 4}},
	}

	report := Observations(testSpec(), steps)
	assert.Equal(t, StatusMismatch, report.Status)
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, 1, report.Mismatches[0].Index)
	assert.Equal(t, "NaN", report.Mismatches[0].Actual)
	assert.Equal(t, "-Inf", report.Mismatches[1].Actual)

	// Non-finite values are left out of the ranges.
	assert.Equal(t, Range{Index: 1, Label: "pitch", Min: 3, Max: 3}, report.Ranges[1])
}

func TestObservations_NoLabelsIsInformational(t *testing.T) {
	spec := env.Spec{ActionDim: 1, ObservationDim: 1}
	steps := []rollout.StepRecord{{Action: []float64{0}, Observation: []float64{0}}}

	report := Observations(spec, steps)
	assert.Equal(t, StatusPass, report.Status)
	assert.Contains(t, report.Notes, "no observation labels declared")
}

func TestObservations_NoSteps(t *testing.T) {
	report := Observations(testSpec(), nil)
	assert.Equal(t, StatusNotAvailable, report.Status)
	assert.True(t, report.Pass())
}

func TestObservations_InvalidSpec(t *testing.T) {
	steps := []rollout.StepRecord{{Action: []float64{0, 0}, Observation: []float64{1, 2, 3}}}

	for _, dim := range []int{-1, 0} {
		spec := testSpec()
		spec.ObservationDim = dim

		report := Observations(spec, steps)
		assert.Equal(t, StatusNotAvailable, report.Status, "observation_dim %d", dim)
		assert.Empty(t, report.Mismatches)
		require.Len(t, report.Notes, 1)
		assert.Contains(t, report.Notes[0], "observation_dim must be positive")
	}
}

func TestObservations_Hopper(t *testing.T) {
	h := hopper.NewEnv(env.Options{Decompose: true}, nil)
	defer h.Close()

	r := &rollout.Runner{Policy: rollout.RandomSample(1), TraceLimit: 1000}
	rec, err := r.RunEpisode(context.Background(), h, env.Seed(1))
	require.NoError(t, err)

	obs := Observations(hopper.Spec(), rec.Steps)
	assert.Equal(t, StatusPass, obs.Status, "%v", obs.Mismatches)
	assert.Len(t, obs.Ranges, 15)
	assert.Equal(t, "z_change", obs.Labeled[0].Label)

	rewards := Rewards(rec.Steps, hopper.Spec().RewardComponents, 0)
	assert.Equal(t, StatusPass, rewards.Status, "%v", rewards.Mismatches)
	assert.Equal(t, rec.Length, rewards.StepsChecked)
}

func TestLabel(t *testing.T) {
	labeled := Label(testSpec(), env.Observation{0.5, 0.25})
	assert.Equal(t, []LabeledValue{
		{Index: 0, Label: "height", Value: 0.5},
		{Index: 1, Label: "pitch", Value: 0.25},
	}, labeled)
}
