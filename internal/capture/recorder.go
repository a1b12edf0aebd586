// Package capture renders an environment into an ordered frame sequence and
// hands it to an encoding sink.
//
// The frame budget is exact: a capture of N frames yields N frames no matter
// how many episodes end inside it. Finished episodes are reset without a seed
// and capture continues.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/roach88/envprobe/internal/env"
	"github.com/roach88/envprobe/internal/rollout"
)

var errNoFrame = errors.New("render returned no frame")

// Defaults for a capture run.
const (
	DefaultDurationSeconds = 5
	DefaultFPS             = 30
	DefaultOutput          = "hopper_random_policy.gif"
	DefaultResetSeed       = 42
)

// FrameCount returns the number of frames in durationSeconds at fps.
func FrameCount(durationSeconds float64, fps int) (int, error) {
	if fps <= 0 {
		return 0, env.NewConfigurationError("capture", fmt.Sprintf("fps must be positive, got %d", fps))
	}
	if !(durationSeconds > 0) {
		return 0, env.NewConfigurationError("capture", fmt.Sprintf("duration must be positive, got %g", durationSeconds))
	}
	n := int(math.Round(durationSeconds * float64(fps)))
	if n <= 0 {
		return 0, env.NewConfigurationError("capture", fmt.Sprintf("%gs at %d fps yields no frames", durationSeconds, fps))
	}
	return n, nil
}

// Capture is a recorded frame sequence.
type Capture struct {
	Frames []image.Image

	// Episodes counts the episodes that contributed frames.
	Episodes int

	// Resets counts mid-capture resets (Episodes - 1).
	Resets int

	// Steps counts environment steps taken.
	Steps int
}

// Width returns the width of the first frame.
func (c *Capture) Width() int {
	if len(c.Frames) == 0 {
		return 0
	}
	return c.Frames[0].Bounds().Dx()
}

// Height returns the height of the first frame.
func (c *Capture) Height() int {
	if len(c.Frames) == 0 {
		return 0
	}
	return c.Frames[0].Bounds().Dy()
}

// Recorder drives a handle created in rgb_array mode.
type Recorder struct {
	// Policy produces the actions applied between frames. Required.
	Policy rollout.Policy

	Logger *slog.Logger
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Record captures exactly totalFrames frames from h. Each capture is followed
// by one step. fps only paces progress logging. The handle is not closed.
func (r *Recorder) Record(ctx context.Context, h env.Handle, totalFrames, fps int, resetSeed *int64) (*Capture, error) {
	if r.Policy == nil {
		return nil, env.NewConfigurationError("capture", "no action policy")
	}
	if totalFrames <= 0 {
		return nil, env.NewConfigurationError("capture", fmt.Sprintf("frame count must be positive, got %d", totalFrames))
	}
	spec := h.Spec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !spec.SupportsRenderMode(env.RenderModeRGBArray) {
		return nil, env.NewConfigurationError("capture", fmt.Sprintf("environment %s does not support %s rendering", spec.ID, env.RenderModeRGBArray))
	}
	if err := r.Policy.Validate(spec); err != nil {
		return nil, err
	}
	log := r.logger()

	reset := func(seed *int64) error {
		return env.Interact("reset", func() error {
			_, _, err := h.Reset(seed)
			return err
		})
	}
	if err := reset(resetSeed); err != nil {
		return nil, err
	}

	c := &Capture{Frames: make([]image.Image, 0, totalFrames), Episodes: 1}
	for len(c.Frames) < totalFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var frame image.Image
		err := env.Interact("render", func() error {
			var err error
			frame, err = h.Render()
			if err == nil && frame == nil {
				err = errNoFrame
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		c.Frames = append(c.Frames, frame)
		if fps > 0 && len(c.Frames)%fps == 0 {
			log.Info("capture progress", "frames", len(c.Frames), "total", totalFrames, "episodes", c.Episodes)
		}

		action := r.Policy.Action(spec)
		var res env.StepResult
		err = env.Interact("step", func() error {
			var err error
			res, err = h.Step(action)
			return err
		})
		if err != nil {
			return nil, err
		}
		c.Steps++

		if res.Done() {
			if err := reset(nil); err != nil {
				return nil, err
			}
			c.Resets++
			c.Episodes++
		}
	}

	log.Debug("capture finished", "frames", len(c.Frames), "episodes", c.Episodes, "resets", c.Resets)
	return c, nil
}

// Options configures RecordTo. Zero values select the defaults.
type Options struct {
	DurationSeconds float64
	FPS             int

	// ResetSeed seeds the first reset. Mid-capture resets are unseeded.
	ResetSeed *int64
}

// Result is the outcome of RecordTo.
type Result struct {
	Capture *Capture
	Sink    SinkInfo
	FPS     int
}

// RecordTo records DurationSeconds*FPS frames and encodes them with sink.
// Sink failures, and a sink reporting a resolution different from the first
// frame's, are resource errors.
func (r *Recorder) RecordTo(ctx context.Context, h env.Handle, sink Sink, opts Options) (*Result, error) {
	if sink == nil {
		return nil, env.NewConfigurationError("capture", "no encoding sink")
	}
	if opts.DurationSeconds == 0 {
		opts.DurationSeconds = DefaultDurationSeconds
	}
	if opts.FPS == 0 {
		opts.FPS = DefaultFPS
	}
	total, err := FrameCount(opts.DurationSeconds, opts.FPS)
	if err != nil {
		return nil, err
	}

	c, err := r.Record(ctx, h, total, opts.FPS, opts.ResetSeed)
	if err != nil {
		return nil, err
	}

	info, err := sink.Encode(ctx, c.Frames, opts.FPS)
	if err != nil {
		return nil, env.WrapResource("encode", err)
	}
	if info.Width != c.Width() || info.Height != c.Height() {
		return nil, env.NewResourceError("encode", fmt.Sprintf("sink reported %dx%d, first frame is %dx%d",
			info.Width, info.Height, c.Width(), c.Height()))
	}

	r.logger().Info("capture encoded",
		"path", info.Path,
		"frames", info.Frames,
		"bytes", info.Bytes,
		"resolution", fmt.Sprintf("%dx%d", info.Width, info.Height))
	return &Result{Capture: c, Sink: info, FPS: opts.FPS}, nil
}
