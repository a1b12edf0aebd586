// Package envspec loads environment contracts declared in CUE.
//
// A contract file declares one or more environments under the top-level
// "environment" struct:
//
//	environment: "HopperBulletEnv-v0": {
//		action_dim:        3
//		observation_dim:   15
//		max_episode_steps: 1000
//		reward_threshold:  2500.0
//		render_modes: ["human", "rgb_array"]
//		render_fps: 30
//		action_bounds: {low: -1.0, high: 1.0}
//	}
//
// Compiled specs are plain env.Spec values; nothing is registered globally.
package envspec

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/envprobe/internal/env"
)

// CompileError reports a malformed environment declaration.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses one environment struct into an env.Spec. The spec ID is the
// struct's label.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	spec, err := Compile(v.LookupPath(cue.ParsePath(`environment."HopperBulletEnv-v0"`)))
func Compile(v cue.Value) (env.Spec, error) {
	if err := v.Err(); err != nil {
		return env.Spec{}, formatCUEError(err)
	}

	var spec env.Spec
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.ID = labels[len(labels)-1].Unquoted()
	}

	var err error
	if spec.ActionDim, err = requiredInt(v, "action_dim"); err != nil {
		return env.Spec{}, err
	}
	if spec.ObservationDim, err = requiredInt(v, "observation_dim"); err != nil {
		return env.Spec{}, err
	}
	if spec.MaxEpisodeSteps, err = optionalInt(v, "max_episode_steps"); err != nil {
		return env.Spec{}, err
	}
	if spec.RenderFPS, err = optionalInt(v, "render_fps"); err != nil {
		return env.Spec{}, err
	}
	if spec.RewardThreshold, err = optionalFloat(v, "reward_threshold"); err != nil {
		return env.Spec{}, err
	}
	if spec.RenderModes, err = optionalStrings(v, "render_modes"); err != nil {
		return env.Spec{}, err
	}
	if spec.ObservationLabels, err = optionalStrings(v, "observation_labels"); err != nil {
		return env.Spec{}, err
	}
	if spec.RewardComponents, err = optionalStrings(v, "reward_components"); err != nil {
		return env.Spec{}, err
	}

	bounds := v.LookupPath(cue.ParsePath("action_bounds"))
	if bounds.Exists() {
		if spec.ActionLow, err = requiredFloat(bounds, "low"); err != nil {
			return env.Spec{}, err
		}
		if spec.ActionHigh, err = requiredFloat(bounds, "high"); err != nil {
			return env.Spec{}, err
		}
	}

	if err := spec.Validate(); err != nil {
		return env.Spec{}, err
	}
	return spec, nil
}

// LoadFile compiles every environment declared in a single CUE file.
func LoadFile(path string) ([]env.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	return compileAll(v)
}

// LoadDir compiles every environment declared in the CUE package in dir.
func LoadDir(dir string) ([]env.Spec, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat spec directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	ctx := cuecontext.New()
	return compileAll(ctx.BuildInstance(instances[0]))
}

// Load dispatches to LoadFile or LoadDir depending on what path names.
func Load(path string) ([]env.Spec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat spec path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

func compileAll(v cue.Value) ([]env.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	envs := v.LookupPath(cue.ParsePath("environment"))
	if !envs.Exists() {
		return nil, &CompileError{Field: "environment", Message: "no environments declared", Pos: v.Pos()}
	}
	iter, err := envs.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []env.Spec
	for iter.Next() {
		spec, err := Compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", iter.Selector().Unquoted(), err)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, &CompileError{Field: "environment", Message: "no environments declared", Pos: envs.Pos()}
	}
	return specs, nil
}

// Lookup returns the spec with the given ID.
func Lookup(specs []env.Spec, id string) (env.Spec, error) {
	for _, s := range specs {
		if s.ID == id {
			return s, nil
		}
	}
	return env.Spec{}, env.NewConfigurationError("spec", fmt.Sprintf("unknown environment %q", id))
}

func requiredInt(v cue.Value, field string) (int, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	n, err := f.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: f.Pos()}
	}
	return int(n), nil
}

func optionalInt(v cue.Value, field string) (int, error) {
	if !v.LookupPath(cue.ParsePath(field)).Exists() {
		return 0, nil
	}
	return requiredInt(v, field)
}

func requiredFloat(v cue.Value, field string) (float64, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	x, err := f.Float64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be a number", Pos: f.Pos()}
	}
	return x, nil
}

func optionalFloat(v cue.Value, field string) (float64, error) {
	if !v.LookupPath(cue.ParsePath(field)).Exists() {
		return 0, nil
	}
	return requiredFloat(v, field)
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: f.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError keeps the first CUE error together with its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
