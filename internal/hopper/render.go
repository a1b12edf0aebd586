package hopper

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/roach88/envprobe/internal/env"
)

// Frame size of rendered images.
const (
	FrameWidth  = 128
	FrameHeight = 96
)

const (
	groundY    = 80
	bodyPixels = 60
	limbSize   = 3
)

var (
	skyColor    = color.RGBA{R: 222, G: 234, B: 246, A: 255}
	groundColor = color.RGBA{R: 96, G: 84, B: 70, A: 255}
	bodyColor   = color.RGBA{R: 200, G: 120, B: 40, A: 255}
	jointColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// Render implements env.Handle. Frames are only produced for handles created
// in rgb_array mode.
func (e *Env) Render() (image.Image, error) {
	if e.closed {
		return nil, errClosed
	}
	if e.opts.RenderMode != env.RenderModeRGBArray {
		return nil, errRenderMode
	}

	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: skyColor}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, groundY, FrameWidth, FrameHeight), &image.Uniform{C: groundColor}, image.Point{}, draw.Src)

	// Keep the foot centered; the world scrolls underneath.
	footX := float64(FrameWidth) / 2
	footY := float64(groundY)
	sinP, cosP := math.Sin(e.s.pitch), math.Cos(e.s.pitch)
	for i := 0; i <= bodyPixels; i += 2 {
		px := int(footX + float64(i)*sinP)
		py := int(footY - float64(i)*cosP)
		square(img, px, py, bodyColor)
	}
	for j := 0; j < actionDim; j++ {
		along := float64(bodyPixels) * float64(j+1) / float64(actionDim+1)
		bend := 6 * e.s.jointPos[j]
		px := int(footX + along*sinP + bend*cosP)
		py := int(footY - along*cosP + bend*sinP)
		square(img, px, py, jointColor)
	}
	return img, nil
}

func square(img draw.Image, x, y int, c color.Color) {
	r := image.Rect(x-limbSize/2, y-limbSize/2, x+limbSize/2+1, y+limbSize/2+1)
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}
