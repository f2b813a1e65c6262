package display

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextLayout(t *testing.T) {
	assert.Equal(t, 4, RowY(0))
	assert.Equal(t, 34, RowY(2))
	// "HR measure": (128 - 80 - 1) / 100 * 50 = 23.5
	assert.Equal(t, 23, TextX("HR measure", 50))
	assert.Equal(t, 2, TextX("<-", 2))
	// wider than the screen goes negative, like the panel driver allows
	assert.Equal(t, -36, TextX("Press button to try again", 50))
}

func TestAddTextAndSelector(t *testing.T) {
	r := NewRecorder()
	AddText(r, "Basic HRV", 50, 1)
	Selector(r, 1)
	Selector(r, -1)
	ClearRow(r)

	assert.Equal(t, []string{
		`text "Basic HRV" 27 19 1`,
		"rect 0 15 128 17 1",
		"rect 0 0 20 17 1",
		"fill_rect 0 33 128 15 0",
	}, r.Ops())
}

func TestRecorderFrames(t *testing.T) {
	r := NewRecorder()
	shows := 0
	r.OnShow(func() { shows++ })

	r.Fill(Off)
	r.Text("Calculating...", 0, 0, On)
	require.NoError(t, r.Show())
	r.Fill(Off)
	r.Text("72 BPM", 0, 0, On)
	require.NoError(t, r.Show())

	assert.Equal(t, [][]string{{"Calculating..."}, {"72 BPM"}}, r.Frames())
	assert.Equal(t, []string{"72 BPM"}, r.Texts())
	assert.Equal(t, 2, r.Shows())
	assert.Equal(t, 2, shows)

	r.Reset()
	assert.Empty(t, r.Ops())
	assert.Zero(t, r.Shows())
}

func TestParseIcon(t *testing.T) {
	icon := ParseIcon(`
#.
.#
`)
	assert.Equal(t, 2, icon.W)
	assert.Equal(t, 2, icon.H)
	assert.True(t, icon.At(0, 0))
	assert.False(t, icon.At(1, 0))
	assert.True(t, icon.At(1, 1))
	assert.False(t, icon.At(5, 5))

	assert.Equal(t, 16, Heart.W)
	assert.Equal(t, Smiley.W, Crying.W)
}

func TestFramebufferDrawing(t *testing.T) {
	f := NewFramebuffer()
	f.Fill(Off)
	f.Pixel(3, 4, On)
	f.Rect(10, 10, 5, 5, On)
	f.Line(0, 63, 20, 43, On)
	f.Blit(Heart, 100, 0)

	// nothing is visible before Show
	assert.False(t, f.Lit(3, 4))
	require.NoError(t, f.Show())
	assert.Equal(t, uint64(1), f.Frames())

	assert.True(t, f.Lit(3, 4))
	assert.True(t, f.Lit(10, 10))
	assert.True(t, f.Lit(14, 14))
	assert.False(t, f.Lit(12, 12), "rect is not filled")
	assert.True(t, f.Lit(10, 53), "line passes through its midpoint")
	assert.True(t, f.Lit(100+2, 0))

	f.FillRect(0, 0, Width, Height, Off)
	f.VLine(5, 0, 10, On)
	f.HLine(0, 20, 10, On)
	require.NoError(t, f.Show())
	assert.False(t, f.Lit(3, 4))
	assert.True(t, f.Lit(5, 9))
	assert.True(t, f.Lit(9, 20))

	// out of bounds drawing is clipped
	f.Pixel(-1, -1, On)
	f.Line(-10, -10, 200, 200, On)
}

func TestFramebufferText(t *testing.T) {
	f := NewFramebuffer()
	f.Text("HR", 0, 0, On)
	require.NoError(t, f.Show())

	lit := 0
	for y := 0; y < TextHeight; y++ {
		for x := 0; x < 2*CharWidth; x++ {
			if f.Lit(x, y) {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 10)
}

func TestFramebufferPNG(t *testing.T) {
	f := NewFramebuffer()
	f.Fill(On)
	require.NoError(t, f.Show())

	data, err := f.PNG()
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())
}
