package harness

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/inspect"
	"github.com/roach88/envprobe/internal/rollout"
)

// DefaultEnvCheckerSeed seeds the paired resets of the env_checker check.
const DefaultEnvCheckerSeed = 123

// Env checker properties, in order.
const (
	propSeededReset  = "seeded reset is deterministic"
	propResetSchema  = "reset observation matches schema"
	propStepSchema   = "step observation matches schema"
	propFiniteReward = "step reward is finite"
	propOutOfBounds  = "out-of-bounds action tolerated"
)

// envChecker exercises the reset/step contract of a single handle: seeded
// resets must repeat, observations must fit the schema and be finite, and a
// step with an action outside the declared bounds must not fail.
func (h *harness) envChecker(c Check, res *CheckResult) {
	seed := seedOr(c.Seed, DefaultEnvCheckerSeed)

	handle, err := h.open(h.options(env.RenderModeNone))
	if err != nil {
		res.AddError(err)
		return
	}
	defer h.release(handle, res)

	spec := handle.Spec()
	if err := spec.Validate(); err != nil {
		res.AddError(err)
		return
	}
	schema, source := spec, "environment"
	if h.declared != nil {
		schema, source = *h.declared, "declared"
	}

	reset := func(seed *int64) (env.Observation, error) {
		var obs env.Observation
		err := env.Interact("reset", func() error {
			var err error
			obs, _, err = handle.Reset(seed)
			return err
		})
		return obs, err
	}
	step := func(action []float64) (env.StepResult, error) {
		var sr env.StepResult
		err := env.Interact("step", func() error {
			var err error
			sr, err = handle.Step(action)
			return err
		})
		return sr, err
	}

	first, err := reset(env.Seed(seed))
	if err != nil {
		res.AddError(err)
		return
	}
	second, err := reset(env.Seed(seed))
	if err != nil {
		res.AddError(err)
		return
	}
	if floats.Same(first, second) {
		res.AddProperty(propSeededReset, StatusPass, "")
	} else {
		res.AddProperty(propSeededReset, StatusMismatch,
			fmt.Sprintf("two resets with seed %d returned different observations", seed))
	}

	idle := make([]float64, schema.ActionDim)
	addReport(res, propResetSchema, inspect.Observations(schema, []rollout.StepRecord{
		{Action: idle, Observation: second},
	}))

	low, high := spec.ActionBounds()
	mid := rollout.FixedVector(fill(spec.ActionDim, (low+high)/2)).Action(spec)
	sr, err := step(mid)
	if err != nil {
		res.AddError(err)
		return
	}
	addReport(res, propStepSchema, inspect.Observations(schema, []rollout.StepRecord{
		{Action: mid, Observation: sr.Observation, Reward: sr.Reward, Terminated: sr.Terminated, Truncated: sr.Truncated},
	}))
	if math.IsNaN(sr.Reward) || math.IsInf(sr.Reward, 0) {
		res.AddProperty(propFiniteReward, StatusMismatch, fmt.Sprintf("reward %v", sr.Reward))
	} else {
		res.AddProperty(propFiniteReward, StatusPass, "")
	}

	if sr.Done() {
		if _, err := reset(nil); err != nil {
			res.AddError(err)
			return
		}
	}
	// One bound width past the upper bound.
	beyond := rollout.FixedVector(fill(spec.ActionDim, 2*high-low)).Action(spec)
	if _, err := step(beyond); err != nil {
		res.AddProperty(propOutOfBounds, StatusMismatch, err.Error())
	} else {
		res.AddProperty(propOutOfBounds, StatusPass, "action "+formatVector(beyond))
	}

	res.AddDetail("seed", "%d", seed)
	res.AddDetail("schema", "%s", source)
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
