package envspec

import (
	"fmt"
	"slices"

	"github.com/roach88/envprobe/internal/env"
)

// Compare lists every field where the spec a handle reports drifts from the
// declared one. Optional declared fields that are empty are not compared.
func Compare(declared, actual env.Spec) []string {
	var drift []string
	add := func(field string, want, got any) {
		drift = append(drift, fmt.Sprintf("%s: declared %v, environment reports %v", field, want, got))
	}

	if declared.ID != "" && declared.ID != actual.ID {
		add("id", declared.ID, actual.ID)
	}
	if declared.ActionDim != actual.ActionDim {
		add("action_dim", declared.ActionDim, actual.ActionDim)
	}
	if declared.ObservationDim != actual.ObservationDim {
		add("observation_dim", declared.ObservationDim, actual.ObservationDim)
	}
	if declared.MaxEpisodeSteps != 0 && declared.MaxEpisodeSteps != actual.MaxEpisodeSteps {
		add("max_episode_steps", declared.MaxEpisodeSteps, actual.MaxEpisodeSteps)
	}
	if declared.RewardThreshold != 0 && declared.RewardThreshold != actual.RewardThreshold {
		add("reward_threshold", declared.RewardThreshold, actual.RewardThreshold)
	}
	if declared.RenderFPS != 0 && declared.RenderFPS != actual.RenderFPS {
		add("render_fps", declared.RenderFPS, actual.RenderFPS)
	}
	if len(declared.RenderModes) > 0 && !sameSet(declared.RenderModes, actual.RenderModes) {
		add("render_modes", declared.RenderModes, actual.RenderModes)
	}
	dl, dh := declared.ActionBounds()
	al, ah := actual.ActionBounds()
	if dl != al || dh != ah {
		add("action_bounds", [2]float64{dl, dh}, [2]float64{al, ah})
	}
	if len(declared.ObservationLabels) > 0 && !slices.Equal(declared.ObservationLabels, actual.ObservationLabels) {
		add("observation_labels", declared.ObservationLabels, actual.ObservationLabels)
	}
	if len(declared.RewardComponents) > 0 && !slices.Equal(declared.RewardComponents, actual.RewardComponents) {
		add("reward_components", declared.RewardComponents, actual.RewardComponents)
	}
	return drift
}

func sameSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}
