package rollout

import (
	"fmt"

	"github.com/roach88/envprobe/internal/env"
)

// Outcomes reported by EpisodeRecord.Outcome.
const (
	OutcomeTerminated = "terminated"
	OutcomeTruncated  = "truncated"
)

// StepRecord is one step of a rollout.
type StepRecord struct {
	Action      []float64       `json:"action"`
	Observation env.Observation `json:"observation"`
	Reward      float64         `json:"reward"`

	// RewardComponents is nil when the handle does not decompose rewards.
	RewardComponents []float64 `json:"reward_components,omitempty"`

	Terminated bool `json:"terminated"`
	Truncated  bool `json:"truncated"`
}

// EpisodeRecord summarizes one rollout.
//
// Steps holds at most Runner.TraceLimit records; Length and TotalReward always
// cover the whole episode.
type EpisodeRecord struct {
	Seed               *int64          `json:"seed,omitempty"`
	Policy             string          `json:"policy"`
	InitialObservation env.Observation `json:"initial_observation"`
	Steps              []StepRecord    `json:"steps,omitempty"`
	Length             int             `json:"length"`
	TotalReward        float64         `json:"total_reward"`
	Terminated         bool            `json:"terminated"`
	Truncated          bool            `json:"truncated"`

	// CapTruncated is set when the harness step cap ended the episode rather
	// than the environment.
	CapTruncated bool `json:"cap_truncated,omitempty"`
}

// Outcome returns how the episode ended. A record with neither flag set has
// not ended and is an error.
func (r *EpisodeRecord) Outcome() (string, error) {
	switch {
	case r.Terminated && r.Truncated:
		return "", env.NewValidationError("outcome", "episode both terminated and truncated")
	case r.Terminated:
		return OutcomeTerminated, nil
	case r.Truncated:
		return OutcomeTruncated, nil
	default:
		return "", env.NewValidationError("outcome", fmt.Sprintf("episode of %d steps ended without terminated or truncated", r.Length))
	}
}
