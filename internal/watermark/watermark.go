// Package watermark stamps preview images with a rotated, translucent text
// marker so they can be shown without giving away the purchasable original.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

const (
	jpegQuality = 90
	minFontSize = 12.0
)

// Marker describes the overlay.
type Marker struct {
	Text    string
	Color   color.RGBA
	Opacity float64
	// Angle in degrees. Negative values tilt the text counter-clockwise.
	Angle float64
	// Scale is the font size relative to the shorter image side.
	Scale float64
}

// DefaultMarker is the storefront preview stamp.
func DefaultMarker() Marker {
	return Marker{
		Text:    "PREVIEW",
		Color:   color.RGBA{R: 255, A: 255},
		Opacity: 0.4,
		Angle:   -30,
		Scale:   0.08,
	}
}

// Watermarker applies a Marker. It is safe for concurrent use.
type Watermarker struct {
	marker Marker
	font   *opentype.Font
}

// New parses the bundled Go Bold font and validates the marker.
func New(m Marker) (*Watermarker, error) {
	if strings.TrimSpace(m.Text) == "" {
		return nil, errors.New("watermark: text is required")
	}
	if m.Opacity <= 0 || m.Opacity > 1 {
		return nil, fmt.Errorf("watermark: opacity %.2f out of range", m.Opacity)
	}
	if m.Scale <= 0 {
		return nil, errors.New("watermark: scale must be positive")
	}
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("watermark: parse font: %w", err)
	}
	return &Watermarker{marker: m, font: f}, nil
}

// Apply returns a watermarked copy of data encoded in the same format, plus
// the file extension for that format. data itself is never modified.
func (w *Watermarker) Apply(data []byte) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("watermark: decode image: %w", err)
	}
	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	layer, err := w.textLayer(min(bounds.Dx(), bounds.Dy()))
	if err != nil {
		return nil, "", err
	}
	draw.BiLinear.Transform(canvas, w.placement(layer.Bounds(), canvas.Bounds()), layer, layer.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality})
		format = "jpg"
	case "png":
		err = png.Encode(&buf, canvas)
	default:
		return nil, "", fmt.Errorf("watermark: unsupported format %q", format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("watermark: encode %s: %w", format, err)
	}
	return buf.Bytes(), format, nil
}

// textLayer renders the marker text, tinted and translucent, on a
// transparent canvas just large enough to hold it.
func (w *Watermarker) textLayer(shortSide int) (*image.RGBA, error) {
	size := math.Max(minFontSize, w.marker.Scale*float64(shortSide))
	face, err := opentype.NewFace(w.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, fmt.Errorf("watermark: font face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	width := font.MeasureString(face, w.marker.Text).Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	d.DrawString(w.marker.Text)

	tint := color.NRGBA{
		R: w.marker.Color.R,
		G: w.marker.Color.G,
		B: w.marker.Color.B,
		A: uint8(math.Round(w.marker.Opacity * 255)),
	}
	layer := image.NewRGBA(mask.Bounds())
	draw.DrawMask(layer, layer.Bounds(), image.NewUniform(tint), image.Point{}, mask, image.Point{}, draw.Src)
	return layer, nil
}

// placement maps layer coordinates onto the canvas: rotate about the layer
// center, then move that center onto the canvas center.
func (w *Watermarker) placement(layer, canvas image.Rectangle) f64.Aff3 {
	theta := w.marker.Angle * math.Pi / 180
	sin, cos := math.Sincos(theta)
	lx, ly := float64(layer.Dx())/2, float64(layer.Dy())/2
	cx, cy := float64(canvas.Dx())/2, float64(canvas.Dy())/2
	return f64.Aff3{
		cos, -sin, cx - cos*lx + sin*ly,
		sin, cos, cy - sin*lx - cos*ly,
	}
}
