package env

import "image"

// Observation is one observation vector.
type Observation []float64

// Info carries auxiliary per-call data returned by the environment.
type Info map[string]any

// StepResult is the outcome of one Handle.Step call.
type StepResult struct {
	Observation Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        Info
}

// Done reports whether the episode ended on this step.
func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}

// Variant tags the optional capabilities a handle exposes.
type Variant int

const (
	// VariantBasic exposes only reset/step/render/close.
	VariantBasic Variant = iota
	// VariantRewardDecomposing additionally exposes the additive reward
	// components of the most recent step.
	VariantRewardDecomposing
)

func (v Variant) String() string {
	switch v {
	case VariantBasic:
		return "basic"
	case VariantRewardDecomposing:
		return "reward_decomposing"
	default:
		return "unknown"
	}
}

// Handle wraps one environment instance.
//
// A handle is owned by exactly one goroutine at a time; implementations need
// not be safe for concurrent use.
type Handle interface {
	// Spec returns the environment's static contract.
	Spec() Spec

	// Variant returns the capability tag of this handle.
	Variant() Variant

	// Reset starts a new episode. A nil seed lets the environment continue
	// from its current RNG state.
	Reset(seed *int64) (Observation, Info, error)

	// Step applies one action.
	Step(action []float64) (StepResult, error)

	// Render returns the current frame. Only valid for handles created in
	// rgb_array mode.
	Render() (image.Image, error)

	// Close releases the environment.
	Close() error
}

// RewardDecomposer is implemented by RewardDecomposing handles.
type RewardDecomposer interface {
	// RewardComponents returns the additive components of the reward
	// produced by the most recent Step.
	RewardComponents() []float64
}

// Decomposition returns the reward decomposer of h when h is tagged
// VariantRewardDecomposing and provides one.
func Decomposition(h Handle) (RewardDecomposer, bool) {
	switch h.Variant() {
	case VariantRewardDecomposing:
		dec, ok := h.(RewardDecomposer)
		return dec, ok
	default:
		return nil, false
	}
}

// Options configures handle creation.
type Options struct {
	// RenderMode selects the render mode ("" disables rendering).
	RenderMode string

	// Decompose requests the reward-decomposing variant when available.
	Decompose bool
}

// Factory creates independent environment handles.
// Two handles returned by a factory must not share RNG state or simulator
// memory.
type Factory func(opts Options) (Handle, error)

// Seed returns a pointer to seed for use with Handle.Reset.
func Seed(seed int64) *int64 {
	return &seed
}

// CheckVariant fails with a configuration error when h claims a capability
// its method set does not provide.
func CheckVariant(h Handle) error {
	if h.Variant() != VariantRewardDecomposing {
		return nil
	}
	if _, ok := h.(RewardDecomposer); !ok {
		return NewConfigurationError("variant", "handle tagged reward_decomposing does not expose reward components")
	}
	return nil
}
