// Package rollout drives an environment handle through bounded episodes.
//
// A Runner resets the handle with a seed, steps it with actions from a Policy
// until the environment reports terminated or truncated, and returns an
// EpisodeRecord. The runner also enforces its own step cap so a misbehaving
// environment cannot loop forever:
//
//	r := &rollout.Runner{Policy: rollout.RandomSample(42), MaxSteps: 1000, TraceLimit: 5}
//	rec, err := r.RunEpisode(ctx, h, env.Seed(42))
//
// Only the first TraceLimit steps are retained in the record; length and
// total reward are always tracked for the full episode.
package rollout
