package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitePage(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	}
	return buf.Bytes()
}

func TestApplyKeepsFormatAndSize(t *testing.T) {
	wm, err := New(DefaultMarker())
	require.NoError(t, err)

	tests := []struct {
		format string
		ext    string
	}{
		{format: "png", ext: "png"},
		{format: "jpeg", ext: "jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			input := whitePage(t, 400, 300, tc.format)
			out, ext, err := wm.Apply(input)
			require.NoError(t, err)
			assert.Equal(t, tc.ext, ext)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tc.format, format)
			assert.Equal(t, 400, cfg.Width)
			assert.Equal(t, 300, cfg.Height)
		})
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	wm, err := New(DefaultMarker())
	require.NoError(t, err)
	input := whitePage(t, 320, 320, "png")

	first, _, err := wm.Apply(input)
	require.NoError(t, err)
	second, _, err := wm.Apply(input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyDoesNotTouchInput(t *testing.T) {
	wm, err := New(DefaultMarker())
	require.NoError(t, err)
	input := whitePage(t, 200, 200, "png")
	snapshot := append([]byte(nil), input...)

	out, _, err := wm.Apply(input)
	require.NoError(t, err)
	assert.Equal(t, snapshot, input)
	assert.NotEqual(t, input, out)
}

func TestApplyTintsCenterOnly(t *testing.T) {
	wm, err := New(DefaultMarker())
	require.NoError(t, err)
	out, _, err := wm.Apply(whitePage(t, 400, 400, "png"))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	corner := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, corner)

	tinted := 0
	for y := 150; y < 250; y++ {
		for x := 100; x < 300; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if c.R == 255 && c.G < 255 && c.B < 255 {
				tinted++
			}
		}
	}
	assert.Greater(t, tinted, 100, "expected red marker pixels around the center")
}

func TestApplyRejectsGarbage(t *testing.T) {
	wm, err := New(DefaultMarker())
	require.NoError(t, err)
	_, _, err = wm.Apply([]byte("not an image"))
	assert.Error(t, err)
}

func TestNewValidatesMarker(t *testing.T) {
	m := DefaultMarker()
	m.Text = " "
	_, err := New(m)
	assert.Error(t, err)

	m = DefaultMarker()
	m.Opacity = 1.5
	_, err = New(m)
	assert.Error(t, err)
}
