// Package display defines the drawing surface of the 128x64 monochrome
// screen and the layout rules the menus and sessions share.
package display

import "strings"

// Screen geometry.
const (
	Width      = 128
	Height     = 64
	TextHeight = 15
	CharWidth  = 8
)

// Color is a monochrome pixel value.
type Color uint8

const (
	Off Color = 0
	On  Color = 1
)

// Display is the set of primitives the device draws with. Nothing reaches the
// panel until Show.
type Display interface {
	Fill(c Color)
	FillRect(x, y, w, h int, c Color)
	Rect(x, y, w, h int, c Color)
	HLine(x, y, w int, c Color)
	VLine(x, y, h int, c Color)
	Line(x0, y0, x1, y1 int, c Color)
	Pixel(x, y int, c Color)
	Text(s string, x, y int, c Color)
	Blit(icon Icon, x, y int)
	Show() error
}

// TextX returns the x coordinate that places s at pct percent of the free
// width of a row.
func TextX(s string, pct int) int {
	return int(float64(Width-len(s)*CharWidth-1) / 100 * float64(pct))
}

// RowY returns the y coordinate of text on menu row row.
func RowY(row int) int {
	return row*TextHeight + 4
}

// AddText draws s on a menu row, horizontally placed at pct percent.
func AddText(d Display, s string, pct, row int) {
	d.Text(s, TextX(s, pct), RowY(row), On)
}

// ClearRow blanks the live value area used by the measurement screens.
func ClearRow(d Display) {
	d.FillRect(0, 33, Width, TextHeight, Off)
}

// Selector outlines the selected row. Row -1 is the back arrow.
func Selector(d Display, row int) {
	if row < 0 {
		d.Rect(0, 0, 20, TextHeight+2, On)
		return
	}
	d.Rect(0, row*TextHeight, Width, TextHeight+2, On)
}

// Icon is a 1-bit bitmap.
type Icon struct {
	W, H int
	bits []bool
}

// At reports whether the pixel at (x, y) is set.
func (i Icon) At(x, y int) bool {
	if x < 0 || y < 0 || x >= i.W || y >= i.H {
		return false
	}
	return i.bits[y*i.W+x]
}

// ParseIcon builds an icon from rows of text where '#' is a lit pixel.
func ParseIcon(art string) Icon {
	rows := strings.Split(strings.Trim(art, "\n"), "\n")
	w := 0
	for _, r := range rows {
		w = max(w, len(r))
	}
	icon := Icon{W: w, H: len(rows), bits: make([]bool, w*len(rows))}
	for y, r := range rows {
		for x, ch := range r {
			icon.bits[y*w+x] = ch == '#'
		}
	}
	return icon
}

// Icons shown on the cloud result screen.
var (
	Heart = ParseIcon(`
..####....####..
.######..######.
################
################
################
.##############.
..############..
...##########...
....########....
.....######.....
......####......
.......##.......
`)

	Smiley = ParseIcon(`
....######....
..##......##..
.#..........#.
#...##..##...#
#...##..##...#
#............#
#.#........#.#
#..#......#..#
.#..######..#.
..##......##..
....######....
`)

	Crying = ParseIcon(`
....######....
..##......##..
.#..........#.
#...##..##...#
#...##..##...#
#...#....#...#
#...#....#...#
#....####....#
.#..#....#..#.
..##......##..
....######....
`)
)
