package env

import (
	"fmt"
	"slices"
)

// Render modes understood by the diagnostics.
const (
	RenderModeNone     = ""
	RenderModeRGBArray = "rgb_array"
	RenderModeHuman    = "human"
)

// Spec describes the static contract of an environment.
// It is read once when a handle is created and never changes afterwards.
type Spec struct {
	// ID names the environment (e.g., "Hopper-v0").
	ID string `json:"id"`

	ActionDim      int `json:"action_dim"`
	ObservationDim int `json:"observation_dim"`

	// MaxEpisodeSteps is the environment's own truncation limit.
	// Zero means the environment declares no limit.
	MaxEpisodeSteps int `json:"max_episode_steps,omitempty"`

	RewardThreshold float64  `json:"reward_threshold"`
	RenderModes     []string `json:"render_modes,omitempty"`
	RenderFPS       int      `json:"render_fps,omitempty"`

	// ActionLow and ActionHigh bound every action coordinate.
	// Both zero means the default box [-1, 1].
	ActionLow  float64 `json:"action_low"`
	ActionHigh float64 `json:"action_high"`

	// ObservationLabels documents the semantic role of each observation
	// index. Optional; may be shorter than ObservationDim.
	ObservationLabels []string `json:"observation_labels,omitempty"`

	// RewardComponents names the additive reward terms of decomposing
	// variants. Optional.
	RewardComponents []string `json:"reward_components,omitempty"`
}

// Validate checks the structural invariants of the spec.
// Returns a configuration error describing the first violation.
func (s Spec) Validate() error {
	if s.ActionDim <= 0 {
		return NewConfigurationError("spec", fmt.Sprintf("action_dim must be positive, got %d", s.ActionDim))
	}
	if s.ObservationDim <= 0 {
		return NewConfigurationError("spec", fmt.Sprintf("observation_dim must be positive, got %d", s.ObservationDim))
	}
	if s.MaxEpisodeSteps < 0 {
		return NewConfigurationError("spec", fmt.Sprintf("max_episode_steps must be non-negative, got %d", s.MaxEpisodeSteps))
	}
	low, high := s.ActionBounds()
	if low >= high {
		return NewConfigurationError("spec", fmt.Sprintf("action bounds inverted: low=%g high=%g", low, high))
	}
	if len(s.ObservationLabels) > s.ObservationDim {
		return NewConfigurationError("spec", fmt.Sprintf("%d observation labels for %d observation dims", len(s.ObservationLabels), s.ObservationDim))
	}
	if s.RenderFPS < 0 {
		return NewConfigurationError("spec", fmt.Sprintf("render_fps must be non-negative, got %d", s.RenderFPS))
	}
	return nil
}

// ActionBounds returns the sampling box for actions.
func (s Spec) ActionBounds() (low, high float64) {
	if s.ActionLow == 0 && s.ActionHigh == 0 {
		return -1, 1
	}
	return s.ActionLow, s.ActionHigh
}

// SupportsRenderMode reports whether mode is listed in RenderModes.
func (s Spec) SupportsRenderMode(mode string) bool {
	return slices.Contains(s.RenderModes, mode)
}

// ObservationLabel returns the documented role of index i, or "" when the
// spec does not document it.
func (s Spec) ObservationLabel(i int) string {
	if i < 0 || i >= len(s.ObservationLabels) {
		return ""
	}
	return s.ObservationLabels[i]
}
