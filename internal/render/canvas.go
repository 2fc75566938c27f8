package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var black = color.Gray{Y: 0}

// Canvas is a white 8-bit grayscale raster. Every drawing helper clips to
// the canvas bounds.
type Canvas struct {
	*image.Gray
}

func NewCanvas(w, h int) *Canvas {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &Canvas{Gray: img}
}

func (c *Canvas) Width() int  { return c.Bounds().Dx() }
func (c *Canvas) Height() int { return c.Bounds().Dy() }

// FillRect paints r black.
func (c *Canvas) FillRect(r image.Rectangle) {
	r = r.Intersect(c.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(c.Gray, r, image.Black, image.Point{}, draw.Src)
}

// Paste copies src with its top-left corner at (x, y).
func (c *Canvas) Paste(src image.Image, x, y int) {
	sb := src.Bounds()
	dst := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	clipped := dst.Intersect(c.Bounds())
	if clipped.Empty() {
		return
	}
	sp := sb.Min.Add(clipped.Min.Sub(dst.Min))
	draw.Draw(c.Gray, clipped, src, sp, draw.Src)
}

// DrawText draws s with the top of the line box at y.
func (c *Canvas) DrawText(face font.Face, s string, x, y int) {
	d := font.Drawer{
		Dst:  c.Gray,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// InkBounds returns the bounding box of pixels darker than the threshold.
func InkBounds(img *image.Gray, threshold uint8) image.Rectangle {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y >= threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// ToGray flattens img onto white and converts it to grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := NewCanvas(b.Dx(), b.Dy()).Gray
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// Scale resizes img to w x h with Catmull-Rom resampling.
func Scale(img image.Image, w, h int) *image.Gray {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return ToGray(img)
	}
	g := ToGray(img)
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Bounds(), g, g.Bounds(), draw.Src, nil)
	return out
}
