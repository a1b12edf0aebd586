package rollout

import (
	"fmt"
	"math/rand"

	"github.com/roach88/envprobe/internal/env"
)

// Policy names accepted by ParsePolicy.
const (
	PolicyRandom = "random"
	PolicyZero   = "zero"
)

// Policy produces actions for a rollout.
type Policy interface {
	// Name identifies the policy in reports.
	Name() string

	// Validate checks that the policy can act in an environment with spec.
	Validate(spec env.Spec) error

	// Action returns the next action.
	Action(spec env.Spec) []float64
}

// ParsePolicy resolves a policy by name. seed seeds the random policy.
func ParsePolicy(name string, seed int64) (Policy, error) {
	switch name {
	case PolicyRandom:
		return RandomSample(seed), nil
	case PolicyZero:
		return Zero(), nil
	default:
		return nil, env.NewConfigurationError("policy", fmt.Sprintf("unknown policy %q (want %q or %q)", name, PolicyRandom, PolicyZero))
	}
}

type randomPolicy struct {
	rng *rand.Rand
}

// RandomSample draws every coordinate uniformly from the spec's action bounds.
// The policy owns its RNG, so two policies with the same seed produce the same
// action sequence.
func RandomSample(seed int64) Policy {
	return &randomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *randomPolicy) Name() string { return PolicyRandom }

func (p *randomPolicy) Validate(spec env.Spec) error {
	if spec.ActionDim <= 0 {
		return env.NewConfigurationError("policy", "random policy needs a positive action_dim")
	}
	return nil
}

func (p *randomPolicy) Action(spec env.Spec) []float64 {
	low, high := spec.ActionBounds()
	action := make([]float64, spec.ActionDim)
	for i := range action {
		action[i] = low + (high-low)*p.rng.Float64()
	}
	return action
}

type fixedPolicy struct {
	name   string
	vector []float64
}

// FixedVector applies v on every step.
func FixedVector(v []float64) Policy {
	return &fixedPolicy{name: "fixed", vector: append([]float64(nil), v...)}
}

func (p *fixedPolicy) Name() string { return p.name }

func (p *fixedPolicy) Validate(spec env.Spec) error {
	if p.vector == nil {
		return nil
	}
	if len(p.vector) != spec.ActionDim {
		return env.NewConfigurationError("policy", fmt.Sprintf("fixed action has length %d, action_dim is %d", len(p.vector), spec.ActionDim))
	}
	return nil
}

func (p *fixedPolicy) Action(spec env.Spec) []float64 {
	if p.vector == nil {
		return make([]float64, spec.ActionDim)
	}
	return append([]float64(nil), p.vector...)
}

// Zero applies the all-zero action sized to the spec's action_dim.
func Zero() Policy {
	return &fixedPolicy{name: PolicyZero}
}
