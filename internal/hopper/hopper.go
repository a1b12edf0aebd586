// Package hopper is a small deterministic planar hopper used as the reference
// environment for envprobe.
//
// The body is modelled as an inverted pendulum standing on one foot with three
// actuated joints (thigh, leg, foot). Without corrective torque the pendulum
// falls within a few dozen steps, which terminates the episode. Episodes that
// stay upright are truncated after MaxEpisodeSteps steps.
package hopper

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/roach88/envprobe/internal/env"
)

// ID is the environment identifier reported by Spec.
const ID = "HopperBulletEnv-v0"

const (
	actionDim      = 3
	observationDim = 15

	// MaxEpisodeSteps is the step limit after which an episode is truncated.
	MaxEpisodeSteps = 1000

	renderFPS = 30

	dt          = 0.05
	gravityGain = 12.0
	thighGain   = 2.0
	jointDamp   = 0.9
	jointGain   = 0.5
	torsoHeight = 1.25
	kneeSag     = 0.05
	velScale    = 0.3

	minHeight  = 0.8
	maxPitch   = 1.0
	jointLimit = 0.99

	electricityCost = -0.1
	jointLimitCost  = -0.1
)

// Observation indices.
const (
	obsZChange = iota
	obsSinAngle
	obsCosAngle
	obsVX
	obsVY
	obsVZ
	obsRoll
	obsPitch
	obsJoints      // j1_pos, j1_vel, j2_pos, j2_vel, j3_pos, j3_vel
	obsFootContact = obsJoints + 2*actionDim
)

// Reward component order. The scalar reward is their sum in this order.
var componentNames = []string{"alive", "progress", "electricity", "joints_at_limit", "feet_collision"}

var observationLabels = []string{
	"z_change", "sin(angle)", "cos(angle)",
	"vx", "vy", "vz",
	"roll", "pitch",
	"j1_pos", "j1_vel", "j2_pos", "j2_vel", "j3_pos", "j3_vel",
	"foot_contact",
}

var (
	errClosed      = errors.New("hopper: environment closed")
	errNotReset    = errors.New("hopper: step before reset")
	errRenderMode  = errors.New("hopper: render requires rgb_array render mode")
	errActionShape = errors.New("hopper: action has wrong length")
)

// Spec returns the static contract of the hopper environment.
func Spec() env.Spec {
	return env.Spec{
		ID:                ID,
		ActionDim:         actionDim,
		ObservationDim:    observationDim,
		MaxEpisodeSteps:   MaxEpisodeSteps,
		RewardThreshold:   2500,
		RenderModes:       []string{env.RenderModeHuman, env.RenderModeRGBArray},
		RenderFPS:         renderFPS,
		ActionLow:         -1,
		ActionHigh:        1,
		ObservationLabels: append([]string(nil), observationLabels...),
		RewardComponents:  append([]string(nil), componentNames...),
	}
}

type state struct {
	x         float64
	pitch     float64
	pitchRate float64
	jointPos  [actionDim]float64
	jointVel  [actionDim]float64
}

// Env is one hopper instance. It is not safe for concurrent use.
type Env struct {
	opts env.Options
	rng  *rand.Rand

	s          state
	initialZ   float64
	prevZ      float64
	vz         float64
	steps      int
	started    bool
	done       bool
	closed     bool
	components []float64
}

// New creates a hopper. It has the env.Factory signature.
func New(opts env.Options) (env.Handle, error) {
	return NewEnv(opts, nil), nil
}

// NewEnv creates a hopper drawing initial states from rng. A nil rng is
// seeded from the global source.
func NewEnv(opts env.Options, rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Env{opts: opts, rng: rng, components: make([]float64, len(componentNames))}
}

// Spec implements env.Handle.
func (e *Env) Spec() env.Spec { return Spec() }

// Variant implements env.Handle.
func (e *Env) Variant() env.Variant {
	if e.opts.Decompose {
		return env.VariantRewardDecomposing
	}
	return env.VariantBasic
}

// Reset implements env.Handle. A nil seed keeps drawing from the current RNG.
func (e *Env) Reset(seed *int64) (env.Observation, env.Info, error) {
	if e.closed {
		return nil, nil, errClosed
	}
	if seed != nil {
		e.rng = rand.New(rand.NewSource(*seed))
	}

	pitch := 0.01 + 0.02*e.rng.Float64()
	if e.rng.Intn(2) == 0 {
		pitch = -pitch
	}
	e.s = state{
		pitch:     pitch,
		pitchRate: 0.01*e.rng.Float64() - 0.005,
	}
	for i := range e.s.jointPos {
		e.s.jointPos[i] = 0.1*e.rng.Float64() - 0.05
	}
	e.initialZ = e.height()
	e.prevZ = e.initialZ
	e.vz = 0
	e.steps = 0
	e.started = true
	e.done = false
	clear(e.components)

	return e.observation(), env.Info{}, nil
}

// Step implements env.Handle.
func (e *Env) Step(action []float64) (env.StepResult, error) {
	switch {
	case e.closed:
		return env.StepResult{}, errClosed
	case !e.started:
		return env.StepResult{}, errNotReset
	case len(action) != actionDim:
		return env.StepResult{}, fmt.Errorf("%w: got %d, want %d", errActionShape, len(action), actionDim)
	}

	var a [actionDim]float64
	for i, v := range action {
		a[i] = clip(v, -1, 1)
	}

	prevX := e.s.x
	for i := range a {
		e.s.jointVel[i] = jointDamp*e.s.jointVel[i] + jointGain*a[i]
		e.s.jointPos[i] = clip(e.s.jointPos[i]+dt*e.s.jointVel[i], -1, 1)
	}
	pitchAcc := gravityGain*math.Sin(e.s.pitch) + thighGain*a[0]
	e.s.pitchRate += dt * pitchAcc
	e.s.pitch += dt * e.s.pitchRate
	e.s.x += dt * torsoHeight * math.Cos(e.s.pitch) * e.s.pitchRate
	e.steps++

	z := e.height()
	terminated := z < minHeight || math.Abs(e.s.pitch) > maxPitch
	truncated := !terminated && e.steps >= MaxEpisodeSteps

	alive := 1.0
	if terminated {
		alive = -1
	}
	electricity := 0.0
	atLimit := 0
	for i := range a {
		electricity += math.Abs(a[i] * e.s.jointVel[i])
		if math.Abs(e.s.jointPos[i]) > jointLimit {
			atLimit++
		}
	}
	e.components[0] = alive
	e.components[1] = (e.s.x - prevX) / dt
	e.components[2] = electricityCost * electricity
	e.components[3] = jointLimitCost * float64(atLimit)
	e.components[4] = 0

	var reward float64
	for _, c := range e.components {
		reward += c
	}

	e.vz = (z - e.prevZ) / dt
	e.prevZ = z
	e.done = terminated || truncated
	return env.StepResult{
		Observation: e.observation(),
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   truncated,
		Info:        env.Info{"steps": e.steps},
	}, nil
}

// RewardComponents implements env.RewardDecomposer.
func (e *Env) RewardComponents() []float64 {
	out := make([]float64, len(e.components))
	copy(out, e.components)
	return out
}

// Close implements env.Handle. Closing twice is an error.
func (e *Env) Close() error {
	if e.closed {
		return errClosed
	}
	e.closed = true
	return nil
}

func (e *Env) height() float64 {
	return torsoHeight*math.Cos(e.s.pitch) - kneeSag*math.Abs(e.s.jointPos[1])
}

func (e *Env) observation() env.Observation {
	obs := make(env.Observation, observationDim)
	z := e.height()
	vx := torsoHeight * math.Cos(e.s.pitch) * e.s.pitchRate

	obs[obsZChange] = z - e.initialZ
	obs[obsSinAngle] = math.Sin(e.s.pitch)
	obs[obsCosAngle] = math.Cos(e.s.pitch)
	obs[obsVX] = velScale * vx
	obs[obsVY] = 0
	obs[obsVZ] = velScale * e.vz
	obs[obsRoll] = 0
	obs[obsPitch] = e.s.pitch
	for i := 0; i < actionDim; i++ {
		obs[obsJoints+2*i] = e.s.jointPos[i]
		obs[obsJoints+2*i+1] = velScale * e.s.jointVel[i]
	}
	if !e.done {
		obs[obsFootContact] = 1
	}
	return obs
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
