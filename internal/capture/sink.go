package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
)

// SinkInfo describes an encoded artifact.
type SinkInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Frames int    `json:"frames"`
	Bytes  int64  `json:"bytes"`
	Path   string `json:"path,omitempty"`
}

// Sink encodes an ordered frame sequence at a target rate.
type Sink interface {
	Encode(ctx context.Context, frames []image.Image, fps int) (SinkInfo, error)
}

// GIFSink writes an animated GIF to Path.
type GIFSink struct {
	Path string
}

// Encode implements Sink. Frames are quantized to the Plan 9 palette and
// placed at the origin of a logical screen sized to the largest frame. Frame
// delays are spread in hundredths of a second so the clip lasts
// len(frames)/fps seconds. The returned size is read back from the written
// file.
func (s *GIFSink) Encode(ctx context.Context, frames []image.Image, fps int) (SinkInfo, error) {
	if len(frames) == 0 {
		return SinkInfo{}, errors.New("no frames to encode")
	}
	if fps <= 0 {
		return SinkInfo{}, fmt.Errorf("invalid fps %d", fps)
	}

	anim := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(frames)),
		Delay: frameDelays(len(frames), fps),
		Config: image.Config{
			ColorModel: color.Palette(palette.Plan9),
		},
	}
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return SinkInfo{}, err
		}
		bounds := frame.Bounds()
		p := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), palette.Plan9)
		draw.Draw(p, p.Bounds(), frame, bounds.Min, draw.Src)
		anim.Image = append(anim.Image, p)
		anim.Config.Width = max(anim.Config.Width, bounds.Dx())
		anim.Config.Height = max(anim.Config.Height, bounds.Dy())
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return SinkInfo{}, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return SinkInfo{}, fmt.Errorf("create %s: %w", s.Path, err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return SinkInfo{}, fmt.Errorf("encode gif: %w", err)
	}
	if err := f.Close(); err != nil {
		return SinkInfo{}, fmt.Errorf("close %s: %w", s.Path, err)
	}

	return s.describe(len(anim.Image))
}

// describe reads the logical screen size and byte count of the written file.
func (s *GIFSink) describe(frames int) (SinkInfo, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return SinkInfo{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	cfg, err := gif.DecodeConfig(f)
	if err != nil {
		return SinkInfo{}, fmt.Errorf("read back %s: %w", s.Path, err)
	}
	st, err := f.Stat()
	if err != nil {
		return SinkInfo{}, fmt.Errorf("stat %s: %w", s.Path, err)
	}
	return SinkInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Frames: frames,
		Bytes:  st.Size(),
		Path:   s.Path,
	}, nil
}

// frameDelays spreads n frames at fps over whole hundredths of a second:
// frame i ends at round((i+1)*100/fps). Rates above 100 fps get the minimum
// delay of 1.
func frameDelays(n, fps int) []int {
	delays := make([]int, n)
	prev := 0
	for i := range delays {
		end := ((i+1)*100 + fps/2) / fps
		delays[i] = max(end-prev, 1)
		prev = end
	}
	return delays
}
