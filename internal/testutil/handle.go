package testutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/roach88/envprobe/internal/env"
)

// ErrScripted is the cause returned by scripted failures.
var ErrScripted = errors.New("scripted failure")

// ScriptedHandle is a deterministic env.Handle for tests.
//
// Observations are derived from the last reset seed and the step index so
// that distinct seeds always produce distinct trajectories. Every knob is a
// plain field; set them before the first call.
type ScriptedHandle struct {
	SpecValue env.Spec

	// Decomposing tags the handle VariantRewardDecomposing.
	Decomposing bool

	// Reward is returned by every step.
	Reward float64

	// Components overrides the reward components. When nil, a decomposing
	// handle returns {Reward, 0}.
	Components []float64

	// TerminateAfter ends each episode with terminated=true after this many
	// steps. Zero never terminates.
	TerminateAfter int

	// TruncateAfter ends each episode with truncated=true after this many
	// steps. Zero never truncates.
	TruncateAfter int

	// ObservationFn overrides the generated observation.
	ObservationFn func(seed int64, step int) []float64

	// FailStepAt makes the Nth Step call (1-indexed, counted across
	// episodes) fail. Zero never fails.
	FailStepAt int

	// FailResetAt makes the Nth Reset call fail. Zero never fails.
	FailResetAt int

	// PanicOnFail turns scripted failures into panics.
	PanicOnFail bool

	// FailRender makes Render fail.
	FailRender bool

	// FrameWidth and FrameHeight size rendered frames (default 4x3).
	FrameWidth  int
	FrameHeight int

	// CloseErr is returned by Close.
	CloseErr error

	seed        int64
	episodeStep int

	resets atomic.Int64
	steps  atomic.Int64
	closes atomic.Int64
	frames atomic.Int64
}

// ScriptedSpec is a small valid spec for scripted handles.
func ScriptedSpec() env.Spec {
	return env.Spec{
		ID:              "Scripted-v0",
		ActionDim:       3,
		ObservationDim:  4,
		RenderModes:     []string{env.RenderModeRGBArray},
		RenderFPS:       30,
		RewardThreshold: 100,
	}
}

// NewScriptedHandle creates a handle reporting spec with a reward of 1 per step.
func NewScriptedHandle(spec env.Spec) *ScriptedHandle {
	return &ScriptedHandle{SpecValue: spec, Reward: 1}
}

// Spec implements env.Handle.
func (h *ScriptedHandle) Spec() env.Spec { return h.SpecValue }

// Variant implements env.Handle.
func (h *ScriptedHandle) Variant() env.Variant {
	if h.Decomposing {
		return env.VariantRewardDecomposing
	}
	return env.VariantBasic
}

// Reset implements env.Handle.
func (h *ScriptedHandle) Reset(seed *int64) (env.Observation, env.Info, error) {
	n := int(h.resets.Add(1))
	if h.FailResetAt > 0 && n == h.FailResetAt {
		return nil, nil, h.fail("reset", n)
	}
	if seed != nil {
		h.seed = *seed
	} else {
		// Natural reseed: advance deterministically.
		h.seed += 1000
	}
	h.episodeStep = 0
	return h.observation(), env.Info{"seed": h.seed}, nil
}

// Step implements env.Handle.
func (h *ScriptedHandle) Step(action []float64) (env.StepResult, error) {
	n := int(h.steps.Add(1))
	if h.FailStepAt > 0 && n == h.FailStepAt {
		return env.StepResult{}, h.fail("step", n)
	}
	h.episodeStep++
	res := env.StepResult{
		Observation: h.observation(),
		Reward:      h.Reward,
		Info:        env.Info{},
	}
	if h.TerminateAfter > 0 && h.episodeStep >= h.TerminateAfter {
		res.Terminated = true
	}
	if h.TruncateAfter > 0 && h.episodeStep >= h.TruncateAfter {
		res.Truncated = true
	}
	return res, nil
}

// RewardComponents implements env.RewardDecomposer.
func (h *ScriptedHandle) RewardComponents() []float64 {
	if h.Components != nil {
		out := make([]float64, len(h.Components))
		copy(out, h.Components)
		return out
	}
	return []float64{h.Reward, 0}
}

// Render implements env.Handle.
func (h *ScriptedHandle) Render() (image.Image, error) {
	if h.FailRender {
		return nil, h.fail("render", int(h.frames.Load())+1)
	}
	h.frames.Add(1)
	w, ht := h.FrameWidth, h.FrameHeight
	if w == 0 {
		w = 4
	}
	if ht == 0 {
		ht = 3
	}
	img := image.NewRGBA(image.Rect(0, 0, w, ht))
	shade := uint8(h.episodeStep % 256)
	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 0, B: 0, A: 255})
		}
	}
	return img, nil
}

// Close implements env.Handle.
func (h *ScriptedHandle) Close() error {
	h.closes.Add(1)
	return h.CloseErr
}

// Resets returns the number of Reset calls.
func (h *ScriptedHandle) Resets() int { return int(h.resets.Load()) }

// Steps returns the number of Step calls.
func (h *ScriptedHandle) Steps() int { return int(h.steps.Load()) }

// Closes returns the number of Close calls.
func (h *ScriptedHandle) Closes() int { return int(h.closes.Load()) }

// Frames returns the number of rendered frames.
func (h *ScriptedHandle) Frames() int { return int(h.frames.Load()) }

func (h *ScriptedHandle) observation() []float64 {
	if h.ObservationFn != nil {
		return h.ObservationFn(h.seed, h.episodeStep)
	}
	obs := make([]float64, h.SpecValue.ObservationDim)
	for i := range obs {
		obs[i] = float64(h.seed) + float64(h.episodeStep)*0.01 + float64(i)*0.0001
	}
	return obs
}

func (h *ScriptedHandle) fail(op string, n int) error {
	err := fmt.Errorf("%w: %s call %d", ErrScripted, op, n)
	if h.PanicOnFail {
		panic(err)
	}
	return err
}

// HandlePool is an env.Factory that hands out ScriptedHandles and remembers
// them for later inspection.
type HandlePool struct {
	mu      sync.Mutex
	spec    env.Spec
	handles []*ScriptedHandle
	opts    []env.Options

	// Configure, if set, adjusts each handle before it is returned.
	// id is the creation index starting at 0.
	Configure func(id int, h *ScriptedHandle)

	// FailCreateAt makes the Nth factory call (1-indexed) fail.
	FailCreateAt int
}

// NewHandlePool creates a pool producing handles reporting spec.
func NewHandlePool(spec env.Spec) *HandlePool {
	return &HandlePool{spec: spec}
}

// Factory returns the env.Factory backed by this pool.
func (p *HandlePool) Factory() env.Factory {
	return func(opts env.Options) (env.Handle, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.FailCreateAt > 0 && len(p.opts)+1 == p.FailCreateAt {
			p.opts = append(p.opts, opts)
			return nil, fmt.Errorf("%w: create call %d", ErrScripted, p.FailCreateAt)
		}
		p.opts = append(p.opts, opts)
		h := NewScriptedHandle(p.spec)
		h.Decomposing = opts.Decompose
		if p.Configure != nil {
			p.Configure(len(p.handles), h)
		}
		p.handles = append(p.handles, h)
		return h, nil
	}
}

// Handles returns the handles created so far, in creation order.
func (p *HandlePool) Handles() []*ScriptedHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ScriptedHandle, len(p.handles))
	copy(out, p.handles)
	return out
}

// Options returns the options passed to each factory call.
func (p *HandlePool) Options() []env.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]env.Options, len(p.opts))
	copy(out, p.opts)
	return out
}
