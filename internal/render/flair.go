package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrEmptyImage = errors.New("image has no pixels")

// iconExtPriority orders extensions when one icon name exists in several
// formats.
var iconExtPriority = map[string]int{
	".png":  0,
	".gif":  1,
	".bmp":  2,
	".jpg":  3,
	".jpeg": 4,
}

// IconSet maps icon names to files in an icon directory.
type IconSet struct {
	dir   string
	files map[string]string
}

// NewIconSet builds a set from a directory listing. When a name exists with
// several extensions the PNG wins.
func NewIconSet(dir string, filenames []string) IconSet {
	files := make(map[string]string)
	for _, fn := range filenames {
		ext := strings.ToLower(filepath.Ext(fn))
		rank, ok := iconExtPriority[ext]
		if !ok {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(fn, filepath.Ext(fn)))
		if prev, exists := files[name]; exists {
			if iconExtPriority[strings.ToLower(filepath.Ext(prev))] <= rank {
				continue
			}
		}
		files[name] = fn
	}
	return IconSet{dir: dir, files: files}
}

func (s IconSet) Lookup(name string) (string, bool) {
	fn, ok := s.files[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return filepath.Join(s.dir, fn), true
}

func (s IconSet) Names() []string {
	names := make([]string, 0, len(s.files))
	for n := range s.files {
		names = append(names, n)
	}
	return names
}

// DecodeImage decodes PNG, JPEG, GIF or BMP data into grayscale.
func DecodeImage(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return ToGray(img), nil
}

func LoadImageFile(path string) (*image.Gray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return DecodeImage(data)
}

// IconRaster loads the named icon, or draws a placeholder when the icon set
// does not have it.
func (e *Engine) IconRaster(name string) (*image.Gray, error) {
	if path, ok := e.icons.Lookup(name); ok {
		img, err := LoadImageFile(path)
		if err == nil {
			return img, nil
		}
		e.logger.Warn("icon unreadable, using placeholder", "icon", name, "error", err)
	}
	return e.Placeholder(name), nil
}

// ImageRaster decodes supplied image bytes, or reads path when data is empty.
func (e *Engine) ImageRaster(data []byte, path string) (*image.Gray, error) {
	if len(data) > 0 {
		return DecodeImage(data)
	}
	if path == "" {
		return nil, ErrEmptyImage
	}
	return LoadImageFile(path)
}

// PlaceholderSize is the side of the placeholder square for a receipt width.
func PlaceholderSize(receiptWidth int) int {
	return min(192, max(96, receiptWidth/4))
}

// Placeholder draws a circle outline with the upper-cased first letter of
// name centered inside.
func (e *Engine) Placeholder(name string) *image.Gray {
	size := PlaceholderSize(e.layout.ReceiptWidth)
	c := NewCanvas(size, size)

	const stroke = 4
	center := float64(size) / 2
	radius := center - 6
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)+0.5-center, float64(y)+0.5-center)
			if d <= radius && d >= radius-stroke {
				c.SetGray(x, y, black)
			}
		}
	}

	letter := placeholderLetter(name)
	if letter == "" {
		return c.Gray
	}

	var face font.Face = basicfont.Face7x13
	if f, err := e.fonts.Resolve(max(1, size/2)); err == nil {
		face = f.Face()
	}
	drawCentered(c, face, letter)
	return c.Gray
}

func placeholderLetter(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}

// drawCentered places the ink box of s in the middle of the canvas.
func drawCentered(c *Canvas, face font.Face, s string) {
	b, _ := font.BoundString(face, s)
	w := (b.Max.X - b.Min.X).Ceil()
	h := (b.Max.Y - b.Min.Y).Ceil()
	x := (c.Width()-w)/2 - b.Min.X.Floor()
	y := (c.Height()-h)/2 - b.Min.Y.Floor()
	d := font.Drawer{Dst: c.Gray, Src: image.Black, Face: face, Dot: fixed.P(x, y)}
	d.DrawString(s)
}
