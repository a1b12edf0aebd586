package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/envprobe/internal/capture"
	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/envspec"
)

// Config wires a suite to an environment.
type Config struct {
	// Factory creates the handles under test. Required.
	Factory env.Factory

	// Spec is the declared contract handles are compared against. Ignored
	// when the suite names a spec file. The zero value means no contract.
	Spec env.Spec

	// Decompose requests reward-decomposing handles, in addition to the
	// suite's own setting.
	Decompose bool

	// Sink returns the encoder for a capture check. Defaults to a GIF file
	// at the check's output path.
	Sink func(c Check) capture.Sink

	Logger *slog.Logger
}

// harness carries the state of one Run call.
type harness struct {
	cfg       Config
	declared  *env.Spec
	decompose bool
	log       *slog.Logger
	result    *Result
}

// Run executes the checks of suite in order and returns their outcomes.
//
// Check failures never abort the run: they are recorded in the Result.
// Run only returns an error when the suite cannot start (no factory, an
// unreadable spec file, an unknown env_id) or when ctx is done, in which
// case the checks finished so far are returned with the error.
func Run(ctx context.Context, suite *Suite, cfg Config) (*Result, error) {
	if cfg.Factory == nil {
		return nil, env.NewConfigurationError("harness", "no environment factory")
	}
	if suite == nil {
		return nil, env.NewConfigurationError("harness", "no suite")
	}

	declared, err := declaredSpec(suite, cfg.Spec)
	if err != nil {
		return nil, err
	}

	h := &harness{
		cfg:       cfg,
		declared:  declared,
		decompose: cfg.Decompose || suite.Decompose,
		log:       cfg.Logger,
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	envID := ""
	if declared != nil {
		envID = declared.ID
	}
	h.result = NewResult(suite.Name, envID)

	h.log.Info("suite starting", "suite", suite.Name, "checks", len(suite.Checks), "env", envID)
	for _, c := range suite.Checks {
		if err := ctx.Err(); err != nil {
			return h.result, err
		}
		h.log.Debug("check starting", "check", c.Name, "type", c.Type)
		res := h.runCheck(ctx, c)
		h.result.AddCheck(*res)
		h.log.Info("check finished", "check", c.Name, "status", res.Status)
	}
	h.log.Info("suite finished", "suite", suite.Name, "pass", h.result.Pass, "hard_failure", h.result.HardFailure)
	return h.result, nil
}

// declaredSpec returns the contract checks compare against, or nil.
func declaredSpec(suite *Suite, fallback env.Spec) (*env.Spec, error) {
	if suite.Spec == "" {
		if fallback.ID == "" && fallback.ActionDim == 0 && fallback.ObservationDim == 0 {
			return nil, nil
		}
		if err := fallback.Validate(); err != nil {
			return nil, err
		}
		return &fallback, nil
	}

	specs, err := envspec.Load(suite.Spec)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", suite.Spec, err)
	}
	if suite.EnvID == "" {
		if len(specs) != 1 {
			return nil, env.NewConfigurationError("harness",
				fmt.Sprintf("%s declares %d environments, env_id is required", suite.Spec, len(specs)))
		}
		return &specs[0], nil
	}
	spec, err := envspec.Lookup(specs, suite.EnvID)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

func (h *harness) runCheck(ctx context.Context, c Check) *CheckResult {
	res := newCheckResult(c)
	switch c.Type {
	case CheckInfo:
		h.info(res)
	case CheckEpisodes:
		h.episodes(ctx, c, res)
	case CheckRewardComponents:
		h.rewardComponents(ctx, c, res)
	case CheckObservations:
		h.observations(ctx, c, res)
	case CheckZeroAction:
		h.zeroAction(ctx, c, res)
	case CheckFunctional:
		h.functional(c, res)
	case CheckEnvChecker:
		h.envChecker(c, res)
	case CheckParallel:
		h.parallel(ctx, c, res)
	case CheckCapture:
		h.capture(ctx, c, res)
	default:
		res.AddError(env.NewConfigurationError("harness", fmt.Sprintf("unknown check type %q", c.Type)))
	}
	return res
}

// open creates a handle and records the environment ID the first time one
// is seen.
func (h *harness) open(opts env.Options) (env.Handle, error) {
	var handle env.Handle
	err := env.Interact("create", func() error {
		var err error
		handle, err = h.cfg.Factory(opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, env.NewConfigurationError("create", "factory returned no handle")
	}
	if h.result.Environment == "" {
		h.result.Environment = handle.Spec().ID
	}
	return handle, nil
}

// release closes handle. A close failure is a hard error of the check.
func (h *harness) release(handle env.Handle, res *CheckResult) {
	if err := env.Interact("close", handle.Close); err != nil {
		h.log.Warn("close failed", "check", res.Name, "error", err)
		res.AddError(err)
	}
}

func (h *harness) options(renderMode string) env.Options {
	return env.Options{RenderMode: renderMode, Decompose: h.decompose}
}
