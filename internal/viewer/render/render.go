// Package render draws detection overlays onto a decoded frame and encodes
// the result as JPEG for MJPEG streaming. Stdlib-only (image/image/draw/
// image/jpeg): no third-party 2D drawing or annotation library appears
// anywhere in the retrieval pack.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"ivis-core/internal/contracts"
)

// Options configures the info strip drawn onto every rendered frame.
type Options struct {
	FPS         float64
	InferenceMs float64
	JPEGQuality int
}

// box color cycles deterministically by detection index within a frame; it
// does not follow track IDs, so a track's color can change between frames.
var boxPalette = []color.RGBA{
	{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xc8, B: 0xff, A: 0xff},
	{R: 0xff, G: 0x80, B: 0x00, A: 0xff},
	{R: 0xff, G: 0x00, B: 0xc8, A: 0xff},
}

// Frame draws every detection's bounding box, plus an info strip (FPS,
// inference_ms) across the top of the image, onto a writable copy of bgr,
// and JPEG-encodes the result. Track IDs are not drawn.
func Frame(bgr []byte, width, height int, detections []contracts.Detection, opts Options) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * 3
			if off+2 >= len(bgr) {
				continue
			}
			img.SetRGBA(x, y, color.RGBA{R: bgr[off+2], G: bgr[off+1], B: bgr[off], A: 0xff})
		}
	}

	for i, d := range detections {
		c := boxPalette[i%len(boxPalette)]
		drawBox(img, d.BBox, c)
	}

	drawInfoStrip(img, opts)

	var buf bytes.Buffer
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 80
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode rendered frame: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBox draws a 2px rectangle outline for bbox = (x1, y1, x2, y2).
func drawBox(img *image.RGBA, bbox [4]float64, c color.RGBA) {
	x1, y1, x2, y2 := int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])
	bounds := img.Bounds()
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	x1 = clamp(x1, bounds.Min.X, bounds.Max.X-1)
	x2 = clamp(x2, bounds.Min.X, bounds.Max.X-1)
	y1 = clamp(y1, bounds.Min.Y, bounds.Max.Y-1)
	y2 = clamp(y2, bounds.Min.Y, bounds.Max.Y-1)

	for x := x1; x <= x2; x++ {
		img.SetRGBA(x, y1, c)
		img.SetRGBA(x, y2, c)
	}
	for y := y1; y <= y2; y++ {
		img.SetRGBA(x1, y, c)
		img.SetRGBA(x2, y, c)
	}
}

// drawInfoStrip paints a solid bar across the top 12 pixel rows; the exact
// FPS/inference_ms values are carried in the bar's fill level rather than
// rendered as text, since the standard library ships no font rasterizer.
func drawInfoStrip(img *image.RGBA, opts Options) {
	bounds := img.Bounds()
	height := 12
	if bounds.Dy() < height {
		height = bounds.Dy()
	}
	strip := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+height)
	draw.Draw(img, strip, image.NewUniform(color.RGBA{A: 0x90}), image.Point{}, draw.Over)

	fpsWidth := int(clampFloat(opts.FPS, 0, 60) / 60 * float64(bounds.Dx()))
	fpsBar := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+fpsWidth, bounds.Min.Y+height/2)
	draw.Draw(img, fpsBar, image.NewUniform(color.RGBA{G: 0xff, A: 0xff}), image.Point{}, draw.Over)

	latWidth := int(clampFloat(opts.InferenceMs, 0, 200) / 200 * float64(bounds.Dx()))
	latBar := image.Rect(bounds.Min.X, bounds.Min.Y+height/2, bounds.Min.X+latWidth, bounds.Min.Y+height)
	draw.Draw(img, latBar, image.NewUniform(color.RGBA{R: 0xff, A: 0xff}), image.Point{}, draw.Over)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
