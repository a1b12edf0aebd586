package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/envprobe/internal/capture"
	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/envspec"
	"github.com/roach88/envprobe/internal/inspect"
	"github.com/roach88/envprobe/internal/parallel"
	"github.com/roach88/envprobe/internal/rollout"
	"github.com/roach88/envprobe/internal/stats"
)

// Check defaults.
const (
	DefaultEpisodes        = 5
	DefaultTraceSteps      = 5
	DefaultZeroActionSteps = 50
	DefaultZeroActionSeed  = 42
	DefaultFunctionalSteps = 100
	DefaultWorkers         = 4
	DefaultRounds          = 100
)

func seedOr(seed *int64, fallback int64) int64 {
	if seed != nil {
		return *seed
	}
	return fallback
}

func policyFor(c Check, seed int64) (rollout.Policy, error) {
	name := c.Policy
	if name == "" {
		name = rollout.PolicyRandom
	}
	return rollout.ParsePolicy(name, seed)
}

// fullTrace returns a trace limit keeping every step of an episode.
func fullTrace(c Check) int {
	if c.TraceLimit > 0 {
		return c.TraceLimit
	}
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return rollout.DefaultMaxSteps
}

// single runs one episode on a fresh handle and closes it.
func (h *harness) single(ctx context.Context, res *CheckResult, opts env.Options, runner *rollout.Runner, seed int64) (env.Spec, *rollout.EpisodeRecord, bool) {
	handle, err := h.open(opts)
	if err != nil {
		res.AddError(err)
		return env.Spec{}, nil, false
	}
	defer h.release(handle, res)

	runner.Logger = h.log
	rec, err := runner.RunEpisode(ctx, handle, env.Seed(seed))
	if err != nil {
		res.AddError(err)
		return env.Spec{}, nil, false
	}
	return handle.Spec(), rec, true
}

func (h *harness) info(res *CheckResult) {
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
	if err := env.CheckVariant(handle); err != nil {
		res.AddError(err)
		return
	}
	res.AddProperty("spec is structurally valid", StatusPass, "")

	if h.declared == nil {
		res.AddProperty("matches declared contract", StatusNotAvailable, "no declared contract")
	} else if diffs := envspec.Compare(*h.declared, spec); len(diffs) > 0 {
		res.AddProperty("matches declared contract", StatusMismatch, strings.Join(diffs, "; "))
	} else {
		res.AddProperty("matches declared contract", StatusPass, "")
	}

	low, high := spec.ActionBounds()
	res.AddDetail("id", "%s", spec.ID)
	res.AddDetail("variant", "%s", handle.Variant())
	res.AddDetail("action_dim", "%d", spec.ActionDim)
	res.AddDetail("action_bounds", "[%g, %g]", low, high)
	res.AddDetail("observation_dim", "%d", spec.ObservationDim)
	res.AddDetail("max_episode_steps", "%d", spec.MaxEpisodeSteps)
	res.AddDetail("reward_threshold", "%g", spec.RewardThreshold)
	res.AddDetail("render_modes", "%s", strings.Join(spec.RenderModes, ", "))
	res.AddDetail("render_fps", "%d", spec.RenderFPS)
}

func (h *harness) episodes(ctx context.Context, c Check, res *CheckResult) {
	n := c.Episodes
	if n == 0 {
		n = DefaultEpisodes
	}
	base := seedOr(c.Seed, 0)
	policy, err := policyFor(c, base)
	if err != nil {
		res.AddError(err)
		return
	}

	handle, err := h.open(h.options(env.RenderModeNone))
	if err != nil {
		res.AddError(err)
		return
	}
	defer h.release(handle, res)

	trace := c.TraceLimit
	if trace == 0 {
		trace = DefaultTraceSteps
	}
	runner := &rollout.Runner{Policy: policy, MaxSteps: c.MaxSteps, TraceLimit: trace, LogSteps: trace, Logger: h.log}
	records, err := runner.RunEpisodes(ctx, handle, rollout.Seeds(base, n))
	if err != nil {
		res.AddError(err)
		return
	}
	res.AddProperty("episodes completed", StatusPass, numbers.Sprintf("%d of %d", len(records), n))

	limit := runner.EffectiveCap(handle.Spec())
	var overCap, unended []string
	capped := 0
	for i, rec := range records {
		if rec.Length < 1 || rec.Length > limit {
			overCap = append(overCap, fmt.Sprintf("episode %d: %d steps", i, rec.Length))
		}
		if _, err := rec.Outcome(); err != nil {
			unended = append(unended, fmt.Sprintf("episode %d: %v", i, err))
		}
		if rec.CapTruncated {
			capped++
		}
	}
	if len(overCap) > 0 {
		res.AddProperty("lengths within step cap", StatusMismatch, strings.Join(overCap, "; "))
	} else {
		res.AddProperty("lengths within step cap", StatusPass, numbers.Sprintf("cap %d", limit))
	}
	if len(unended) > 0 {
		res.AddProperty("every episode terminated or truncated", StatusMismatch, strings.Join(unended, "; "))
	} else {
		res.AddProperty("every episode terminated or truncated", StatusPass, "")
	}

	summary, err := stats.Summarize(records)
	if err != nil {
		res.AddError(err)
		return
	}
	res.AddDetail("policy", "%s", policy.Name())
	res.AddDetail("seeds", "%d..%d", base, base+int64(n)-1)
	res.AddDetail("length", "mean %.1f, min %.0f, max %.0f, std %.2f",
		summary.Length.Mean, summary.Length.Min, summary.Length.Max, summary.Length.StdDev)
	res.AddDetail("reward", "mean %.2f, min %.2f, max %.2f, std %.2f",
		summary.Reward.Mean, summary.Reward.Min, summary.Reward.Max, summary.Reward.StdDev)
	res.AddDetail("outcomes", "%d terminated, %d truncated (%d by step cap)", summary.Terminated, summary.Truncated, capped)
	for i, rec := range records {
		outcome, _ := rec.Outcome()
		res.AddDetail(fmt.Sprintf("episode %d", i), "seed %d, %d steps, reward %.2f, %s",
			*rec.Seed, rec.Length, rec.TotalReward, outcome)
		for j, step := range rec.Steps {
			res.AddDetail(fmt.Sprintf("episode %d step %d", i, j+1), "action %s, reward %.3f, terminated=%t, truncated=%t",
				formatVector(step.Action), step.Reward, step.Terminated, step.Truncated)
		}
	}
}

// formatVector renders v with three decimals, e.g. "[0.120, -1.000]".
func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = numbers.Sprintf("%.3f", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (h *harness) rewardComponents(ctx context.Context, c Check, res *CheckResult) {
	seed := seedOr(c.Seed, 0)
	policy, err := policyFor(c, seed)
	if err != nil {
		res.AddError(err)
		return
	}
	runner := &rollout.Runner{Policy: policy, MaxSteps: c.MaxSteps, TraceLimit: fullTrace(c)}
	opts := h.options(env.RenderModeNone)
	opts.Decompose = true
	spec, rec, ok := h.single(ctx, res, opts, runner, seed)
	if !ok {
		return
	}

	names := spec.RewardComponents
	if h.declared != nil && len(h.declared.RewardComponents) > 0 {
		names = h.declared.RewardComponents
	}
	report := inspect.Rewards(rec.Steps, names, c.Tolerance)
	addReport(res, "components sum to reward", report)

	res.AddDetail("components", "%s", strings.Join(names, ", "))
	res.AddDetail("steps checked", "%d", report.StepsChecked)
	var worst float64
	for _, row := range report.Rows {
		worst = max(worst, row.Delta)
	}
	if report.StepsChecked > 0 {
		res.AddDetail("max delta", "%.3g", worst)
	}
}

func (h *harness) observations(ctx context.Context, c Check, res *CheckResult) {
	seed := seedOr(c.Seed, 0)
	policy, err := policyFor(c, seed)
	if err != nil {
		res.AddError(err)
		return
	}
	runner := &rollout.Runner{Policy: policy, MaxSteps: c.MaxSteps, TraceLimit: fullTrace(c)}
	spec, rec, ok := h.single(ctx, res, h.options(env.RenderModeNone), runner, seed)
	if !ok {
		return
	}
	if h.declared != nil {
		spec = *h.declared
	}

	report := inspect.Observations(spec, rec.Steps)
	addReport(res, "observations match schema", report)

	res.AddDetail("steps checked", "%d", report.StepsChecked)
	for _, r := range report.Ranges {
		key := fmt.Sprintf("obs[%d]", r.Index)
		if r.Label != "" {
			key += " " + r.Label
		}
		res.AddDetail(key, "[%.3f, %.3f]", r.Min, r.Max)
	}
}

// addReport turns an analyzer report into one property.
func addReport(res *CheckResult, name string, report *inspect.Report) {
	switch report.Status {
	case inspect.StatusNotAvailable:
		res.AddProperty(name, StatusNotAvailable, strings.Join(report.Notes, "; "))
	case inspect.StatusMismatch:
		res.AddProperty(name, StatusMismatch,
			fmt.Sprintf("%d mismatches, first: %s", len(report.Mismatches), report.Mismatches[0]))
	default:
		res.AddProperty(name, StatusPass, strings.Join(report.Notes, "; "))
	}
}

func (h *harness) zeroAction(ctx context.Context, c Check, res *CheckResult) {
	steps := c.MaxSteps
	if steps == 0 {
		steps = DefaultZeroActionSteps
	}
	seed := seedOr(c.Seed, DefaultZeroActionSeed)
	expect := c.ExpectTerminated == nil || *c.ExpectTerminated

	policy := rollout.Zero()
	if c.Policy != "" && c.Policy != rollout.PolicyZero {
		res.AddError(env.NewConfigurationError("harness", fmt.Sprintf("zero_action check cannot use policy %q", c.Policy)))
		return
	}
	runner := &rollout.Runner{Policy: policy, MaxSteps: steps, TraceLimit: c.TraceLimit}
	_, rec, ok := h.single(ctx, res, h.options(env.RenderModeNone), runner, seed)
	if !ok {
		return
	}

	ended := rec.Terminated
	switch {
	case expect && ended:
		res.AddProperty("terminated before max_steps", StatusPass, numbers.Sprintf("after %d steps", rec.Length))
	case expect:
		res.AddProperty("terminated before max_steps", StatusMismatch, numbers.Sprintf("ran %d steps without terminating", rec.Length))
	case ended:
		res.AddProperty("ran without terminating", StatusMismatch, numbers.Sprintf("terminated after %d steps", rec.Length))
	default:
		res.AddProperty("ran without terminating", StatusPass, numbers.Sprintf("%d steps", rec.Length))
	}

	outcome, _ := rec.Outcome()
	res.AddDetail("seed", "%d", seed)
	res.AddDetail("max_steps", "%d", steps)
	res.AddDetail("length", "%d", rec.Length)
	res.AddDetail("total reward", "%.2f", rec.TotalReward)
	res.AddDetail("outcome", "%s", outcome)
}

// Functional check stages, in order.
const (
	stageCreate = "environment created"
	stageReset  = "reset returns an observation"
	stageStep   = "single random step"
	stageLoop   = "100-step loop with resets"
	stageClose  = "environment closed"
)

func (h *harness) functional(c Check, res *CheckResult) {
	stages := []string{stageCreate, stageReset, stageStep, stageLoop, stageClose}
	failed := false
	record := func(stage string, err error) {
		switch {
		case err == nil:
			res.AddProperty(stage, StatusPass, "")
		case env.IsValidation(err):
			res.AddProperty(stage, StatusMismatch, err.Error())
			failed = true
		default:
			res.AddProperty(stage, StatusError, err.Error())
			failed = true
		}
	}
	skip := func(from, to int) {
		for _, stage := range stages[from:to] {
			res.AddProperty(stage, StatusNotAvailable, "skipped after earlier failure")
		}
	}

	seed := seedOr(c.Seed, 0)
	policy, err := policyFor(c, seed)
	if err != nil {
		res.AddError(err)
		return
	}

	handle, err := h.open(h.options(env.RenderModeNone))
	record(stageCreate, err)
	if failed {
		skip(1, len(stages))
		return
	}
	spec := handle.Spec()
	if err := policy.Validate(spec); err != nil {
		record(stageReset, err)
	}

	if !failed {
		var obs env.Observation
		err := env.Interact("reset", func() error {
			var err error
			obs, _, err = handle.Reset(env.Seed(seed))
			return err
		})
		if err == nil && len(obs) != spec.ObservationDim {
			err = env.NewValidationError("reset", fmt.Sprintf("observation length %d, want %d", len(obs), spec.ObservationDim))
		}
		record(stageReset, err)
	}

	if !failed {
		var sr env.StepResult
		err := env.Interact("step", func() error {
			var err error
			sr, err = handle.Step(policy.Action(spec))
			return err
		})
		if err == nil && len(sr.Observation) != spec.ObservationDim {
			err = env.NewValidationError("step", fmt.Sprintf("observation length %d, want %d", len(sr.Observation), spec.ObservationDim))
		}
		record(stageStep, err)
	}

	if !failed {
		resets := 0
		err := env.Interact("step", func() error {
			for i := 0; i < DefaultFunctionalSteps; i++ {
				sr, err := handle.Step(policy.Action(spec))
				if err != nil {
					return err
				}
				if sr.Done() {
					resets++
					if _, _, err := handle.Reset(nil); err != nil {
						return err
					}
				}
			}
			return nil
		})
		record(stageLoop, err)
		if err == nil {
			res.AddDetail("loop resets", "%d", resets)
		}
	}

	// The handle is closed even after a failure.
	earlier := failed
	if earlier {
		skip(len(res.Properties), len(stages)-1)
	}
	closeErr := env.Interact("close", handle.Close)
	if earlier && closeErr != nil {
		h.log.Warn("close failed after earlier failure", "check", res.Name, "error", closeErr)
	}
	record(stageClose, closeErr)
	if !earlier {
		res.AddDetail("seed", "%d", seed)
	}
}

func (h *harness) parallel(ctx context.Context, c Check, res *CheckResult) {
	workers := c.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	seeds := c.Seeds
	if len(seeds) == 0 {
		seeds = parallel.DefaultSeeds(workers)
	}
	rounds := c.Rounds
	if rounds == 0 {
		rounds = DefaultRounds
	}

	checker := &parallel.Checker{
		Factory:         h.cfg.Factory,
		Options:         h.options(env.RenderModeNone),
		NumWorkers:      workers,
		Seeds:           seeds,
		Rounds:          rounds,
		PolicySeed:      seedOr(c.Seed, 0),
		VerifyReference: c.VerifyReference,
		Logger:          h.log,
	}
	report, err := checker.Run(ctx)
	if report == nil {
		res.AddError(err)
		return
	}

	if err != nil {
		res.AddProperty("all rounds completed", StatusError, err.Error())
		if report.Failure != nil && report.Failure.Trace != "" {
			res.AddDetail("failure trace", "%s", report.Failure.Trace)
		}
	} else {
		res.AddProperty("all rounds completed", StatusPass, numbers.Sprintf("%d of %d", report.RoundsCompleted, rounds))
	}
	if len(report.Mismatches) > 0 {
		res.AddProperty("workers are isolated", StatusMismatch, strings.Join(report.Mismatches, "; "))
	} else if err == nil {
		res.AddProperty("workers are isolated", StatusPass, "")
	}

	states := make([]string, len(report.States))
	for i, s := range report.States {
		states[i] = string(s)
	}
	res.AddDetail("workers", "%d", workers)
	res.AddDetail("rounds completed", "%d of %d", report.RoundsCompleted, rounds)
	res.AddDetail("states", "%s", strings.Join(states, " -> "))
	for _, w := range report.Workers {
		res.AddDetail(fmt.Sprintf("worker %d", w.WorkerID), "seed %d, %d steps, %d episodes, reward %.2f",
			w.Seed, w.Steps, w.Episodes, w.TotalReward)
	}
	for _, f := range report.CloseErrors {
		res.AddDetail(fmt.Sprintf("worker %d close", f.WorkerID), "%s", f.Message)
	}
}

func (h *harness) capture(ctx context.Context, c Check, res *CheckResult) {
	duration := c.Duration
	if duration == 0 {
		duration = capture.DefaultDurationSeconds
	}
	fps := c.FPS
	if fps == 0 {
		fps = capture.DefaultFPS
	}
	expected, err := capture.FrameCount(duration, fps)
	if err != nil {
		res.AddError(err)
		return
	}
	seed := seedOr(c.Seed, capture.DefaultResetSeed)
	policy, err := policyFor(c, seed)
	if err != nil {
		res.AddError(err)
		return
	}

	var sink capture.Sink
	if h.cfg.Sink != nil {
		sink = h.cfg.Sink(c)
	} else {
		out := c.Output
		if out == "" {
			out = capture.DefaultOutput
		}
		sink = &capture.GIFSink{Path: out}
	}

	handle, err := h.open(h.options(env.RenderModeRGBArray))
	if err != nil {
		res.AddError(err)
		return
	}
	defer h.release(handle, res)

	rec := &capture.Recorder{Policy: policy, Logger: h.log}
	out, err := rec.RecordTo(ctx, handle, sink, capture.Options{DurationSeconds: duration, FPS: fps, ResetSeed: env.Seed(seed)})
	if err != nil {
		res.AddError(err)
		return
	}

	if got := len(out.Capture.Frames); got == expected && out.Sink.Frames == expected {
		res.AddProperty("exact frame count", StatusPass, numbers.Sprintf("%d frames", expected))
	} else {
		res.AddProperty("exact frame count", StatusMismatch,
			numbers.Sprintf("want %d, captured %d, encoded %d", expected, got, out.Sink.Frames))
	}
	res.AddProperty("sink resolution matches frames", StatusPass,
		fmt.Sprintf("%dx%d", out.Sink.Width, out.Sink.Height))

	if out.Sink.Path != "" {
		res.AddDetail("output", "%s", out.Sink.Path)
	}
	res.AddDetail("fps", "%d", out.FPS)
	res.AddDetail("bytes", "%d", out.Sink.Bytes)
	res.AddDetail("episodes", "%d", out.Capture.Episodes)
	res.AddDetail("steps", "%d", out.Capture.Steps)
}
