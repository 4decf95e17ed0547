package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Animation replays a computed frame sequence as a GIF. Drawing happens only
// here; the frames themselves stay backend-agnostic.
type Animation struct {
	frames []Frame
	opts   Options
}

func NewAnimation(frames []Frame, opts Options) *Animation {
	return &Animation{
		frames: frames,
		opts:   opts,
	}
}

func (anim *Animation) NumFrames() int {
	return len(anim.frames)
}

const pixelsPerUnit = 100
const surfaceMargin = 30

// EncodeGIF renders every frame and writes a looping GIF. The frame delay is
// derived from the configured fps.
func (anim *Animation) EncodeGIF(w io.Writer) error {
	if len(anim.frames) == 0 {
		return fmt.Errorf("animation has no frames")
	}
	if anim.opts.Fps < 1 {
		return fmt.Errorf("fps must be >= 1, got %d", anim.opts.Fps)
	}

	width := int(anim.opts.FigWidth * pixelsPerUnit)
	height := int(anim.opts.FigHeight * pixelsPerUnit)
	if width <= 2*surfaceMargin || height <= 2*surfaceMargin {
		return fmt.Errorf("figure size %gx%g is too small to draw", anim.opts.FigWidth, anim.opts.FigHeight)
	}

	taggerColor, err := parseHexColor(anim.opts.TaggerColor)
	if err != nil {
		return err
	}
	runnerColor, err := parseHexColor(anim.opts.RunnerColor)
	if err != nil {
		return err
	}
	inactiveColor, err := parseHexColor(anim.opts.InactiveColor)
	if err != nil {
		return err
	}

	background := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	surface := color.RGBA{R: 225, G: 230, B: 244, A: 255}
	labelColor := color.RGBA{R: 102, G: 102, B: 102, A: 255}
	palette := color.Palette{background, surface, labelColor, taggerColor, runnerColor, inactiveColor}

	// GIF delays are in centiseconds; above 100 fps the division would hit
	// zero, which players interpret as no delay at all
	delay := 100 / anim.opts.Fps
	if delay < 1 {
		delay = 1
	}
	out := &gif.GIF{LoopCount: 0}

	for _, frame := range anim.frames {
		img := image.NewPaletted(image.Rect(0, 0, width, height), palette)
		draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

		surfaceRect := image.Rect(surfaceMargin, surfaceMargin, width-surfaceMargin, height-surfaceMargin)
		draw.Draw(img, surfaceRect, image.NewUniform(surface), image.Point{}, draw.Src)

		for _, marker := range frame.Markers {
			if !marker.Glyph {
				continue
			}
			px := surfaceRect.Min.X + int(marker.X*float64(surfaceRect.Dx()))
			py := surfaceRect.Min.Y + int(marker.Y*float64(surfaceRect.Dy()))
			markerColor, err := parseHexColor(marker.Color)
			if err != nil {
				return err
			}
			fillCircle(img, px, py, marker.Size/2+1, markerColor)
		}

		drawLabel(img, frame.Label.Text, labelColor)

		out.Image = append(out.Image, img)
		out.Delay = append(out.Delay, delay)
	}

	return gif.EncodeAll(w, out)
}

func fillCircle(img *image.Paletted, cx int, cy int, radius int, fill color.Color) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.Set(cx+dx, cy+dy, fill)
			}
		}
	}
}

func drawLabel(img *image.Paletted, text string, labelColor color.Color) {
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	for i, line := range strings.Split(text, "\n") {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(labelColor),
			Face: face,
			Dot:  fixed.P(4, lineHeight*(i+1)),
		}
		drawer.DrawString(line)
	}
}

func parseHexColor(s string) (color.RGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
