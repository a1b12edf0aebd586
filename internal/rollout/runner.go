package rollout

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/envprobe/internal/env"
)

// DefaultMaxSteps is the harness step cap used when Runner.MaxSteps is unset.
const DefaultMaxSteps = 1000

// Runner executes single episodes.
type Runner struct {
	// Policy produces actions. Required.
	Policy Policy

	// MaxSteps caps every episode. Zero means DefaultMaxSteps.
	MaxSteps int

	// TraceLimit bounds the number of StepRecords kept per episode.
	TraceLimit int

	// LogSteps is the number of leading steps logged at debug level.
	LogSteps int

	Logger *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// EffectiveCap returns the step cap for an environment with spec: MaxSteps,
// lowered to the environment's own limit when it declares a smaller one.
func (r *Runner) EffectiveCap(spec env.Spec) int {
	limit := r.MaxSteps
	if limit == 0 {
		limit = DefaultMaxSteps
	}
	if spec.MaxEpisodeSteps > 0 && spec.MaxEpisodeSteps < limit {
		limit = spec.MaxEpisodeSteps
	}
	return limit
}

func (r *Runner) validate(h env.Handle) (env.Spec, error) {
	if r.Policy == nil {
		return env.Spec{}, env.NewConfigurationError("rollout", "no action policy")
	}
	if r.MaxSteps < 0 {
		return env.Spec{}, env.NewConfigurationError("rollout", fmt.Sprintf("max steps must be non-negative, got %d", r.MaxSteps))
	}
	if r.TraceLimit < 0 {
		return env.Spec{}, env.NewConfigurationError("rollout", fmt.Sprintf("trace limit must be non-negative, got %d", r.TraceLimit))
	}
	spec := h.Spec()
	if err := spec.Validate(); err != nil {
		return env.Spec{}, err
	}
	if err := env.CheckVariant(h); err != nil {
		return env.Spec{}, err
	}
	if err := r.Policy.Validate(spec); err != nil {
		return env.Spec{}, err
	}
	return spec, nil
}

// RunEpisode resets h with seed and steps it until the episode ends or the
// step cap is reached. A nil seed lets the environment reseed itself.
//
// Reset and step failures are returned as interaction errors carrying the
// raw cause. The handle is not closed.
func (r *Runner) RunEpisode(ctx context.Context, h env.Handle, seed *int64) (*EpisodeRecord, error) {
	spec, err := r.validate(h)
	if err != nil {
		return nil, err
	}
	limit := r.EffectiveCap(spec)
	log := r.logger()

	rec := &EpisodeRecord{Policy: r.Policy.Name()}
	if seed != nil {
		s := *seed
		rec.Seed = &s
	}

	err = env.Interact("reset", func() error {
		obs, _, err := h.Reset(seed)
		rec.InitialObservation = obs
		return err
	})
	if err != nil {
		return nil, err
	}

	dec, decomposing := env.Decomposition(h)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		action := r.Policy.Action(spec)
		var res env.StepResult
		var components []float64
		err := env.Interact("step", func() error {
			var err error
			res, err = h.Step(action)
			if err == nil && decomposing {
				components = append([]float64(nil), dec.RewardComponents()...)
			}
			return err
		})
		if err != nil {
			return nil, err
		}

		rec.Length++
		rec.TotalReward += res.Reward

		// Terminated wins when both flags arrive on the same step.
		terminated := res.Terminated
		truncated := res.Truncated && !terminated

		if len(rec.Steps) < r.TraceLimit {
			rec.Steps = append(rec.Steps, StepRecord{
				Action:           action,
				Observation:      res.Observation,
				Reward:           res.Reward,
				RewardComponents: components,
				Terminated:       terminated,
				Truncated:        truncated,
			})
		}
		if rec.Length <= r.LogSteps {
			log.Debug("step",
				"step", rec.Length,
				"reward", res.Reward,
				"terminated", terminated,
				"truncated", truncated,
				"components", components)
		}

		if terminated {
			rec.Terminated = true
			break
		}
		if truncated {
			rec.Truncated = true
			break
		}
		if rec.Length >= limit {
			rec.Truncated = true
			rec.CapTruncated = true
			break
		}
	}

	log.Debug("episode finished",
		"env", spec.ID,
		"length", rec.Length,
		"total_reward", rec.TotalReward,
		"terminated", rec.Terminated,
		"truncated", rec.Truncated,
		"cap_truncated", rec.CapTruncated)
	return rec, nil
}

// RunEpisodes runs one episode per seed on h, in order.
func (r *Runner) RunEpisodes(ctx context.Context, h env.Handle, seeds []int64) ([]*EpisodeRecord, error) {
	records := make([]*EpisodeRecord, 0, len(seeds))
	for i, seed := range seeds {
		rec, err := r.RunEpisode(ctx, h, env.Seed(seed))
		if err != nil {
			return records, fmt.Errorf("episode %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Seeds returns n consecutive seeds starting at base.
func Seeds(base int64, n int) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	return seeds
}
