package display

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Framebuffer renders into an in-memory 8-bit image. Show publishes the
// current frame so another goroutine can snapshot it.
type Framebuffer struct {
	img *image.Gray

	mu     sync.RWMutex
	shown  *image.Gray
	frames uint64
}

// NewFramebuffer returns a blank Width x Height framebuffer.
func NewFramebuffer() *Framebuffer {
	return &Framebuffer{
		img:   image.NewGray(image.Rect(0, 0, Width, Height)),
		shown: image.NewGray(image.Rect(0, 0, Width, Height)),
	}
}

func gray(c Color) color.Gray {
	if c == Off {
		return color.Gray{Y: 0}
	}
	return color.Gray{Y: 0xff}
}

// Fill sets every pixel to c.
func (f *Framebuffer) Fill(c Color) {
	g := gray(c).Y
	for i := range f.img.Pix {
		f.img.Pix[i] = g
	}
}

// FillRect fills a w×h rectangle with its top-left corner at (x, y).
func (f *Framebuffer) FillRect(x, y, w, h int, c Color) {
	g := gray(c)
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			f.img.SetGray(i, j, g)
		}
	}
}

// Rect draws the outline of a w×h rectangle.
func (f *Framebuffer) Rect(x, y, w, h int, c Color) {
	f.HLine(x, y, w, c)
	f.HLine(x, y+h-1, w, c)
	f.VLine(x, y, h, c)
	f.VLine(x+w-1, y, h, c)
}

// HLine draws a horizontal line w pixels long.
func (f *Framebuffer) HLine(x, y, w int, c Color) { f.FillRect(x, y, w, 1, c) }

// VLine draws a vertical line h pixels long.
func (f *Framebuffer) VLine(x, y, h int, c Color) { f.FillRect(x, y, 1, h, c) }

// Line draws with Bresenham's algorithm.
func (f *Framebuffer) Line(x0, y0, x1, y1 int, c Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		f.Pixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// Pixel implements Display. Coordinates outside the screen are ignored.
func (f *Framebuffer) Pixel(x, y int, c Color) { f.img.SetGray(x, y, gray(c)) }

// Text draws s with its top-left corner at (x, y).
func (f *Framebuffer) Text(s string, x, y int, c Color) {
	d := font.Drawer{
		Dst:  f.img,
		Src:  image.NewUniform(gray(c)),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+basicfont.Face7x13.Ascent-2),
	}
	d.DrawString(s)
}

// Blit draws the lit pixels of icon with its top-left corner at (x, y).
func (f *Framebuffer) Blit(icon Icon, x, y int) {
	for j := 0; j < icon.H; j++ {
		for i := 0; i < icon.W; i++ {
			if icon.At(i, j) {
				f.Pixel(x+i, y+j, On)
			}
		}
	}
}

// Show publishes the frame.
func (f *Framebuffer) Show() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.shown.Pix, f.img.Pix)
	f.frames++
	return nil
}

// Frames returns the number of frames shown.
func (f *Framebuffer) Frames() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frames
}

// Lit reports whether a pixel of the last shown frame is on.
func (f *Framebuffer) Lit(x, y int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shown.GrayAt(x, y).Y != 0
}

// PNG encodes the last shown frame.
func (f *Framebuffer) PNG() ([]byte, error) {
	f.mu.RLock()
	snap := image.NewGray(f.shown.Rect)
	copy(snap.Pix, f.shown.Pix)
	f.mu.RUnlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
