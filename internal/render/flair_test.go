package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/taskprinter/internal/config"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w; i++ {
		img.Set(i, 0, color.NRGBA{A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIconSetPrefersPNG(t *testing.T) {
	set := NewIconSet("/icons", []string{"star.jpg", "star.png", "Moon.GIF", "readme.txt", "sun.jpeg", "sun.bmp"})

	p, ok := set.Lookup("star")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/icons", "star.png"), p)

	p, ok = set.Lookup(" MOON ")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/icons", "Moon.GIF"), p)

	p, ok = set.Lookup("sun")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/icons", "sun.bmp"), p)

	_, ok = set.Lookup("readme")
	assert.False(t, ok)
	assert.Len(t, set.Names(), 3)
}

func TestIconRasterLoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broom.png"), encodePNG(t, 10, 20), 0o644))

	e := NewEngine(config.Default().Layout, packagedFonts(), nil, NewIconSet(dir, []string{"broom.png"}), nil)
	img, err := e.IconRaster("broom")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 20), img.Bounds())
	assert.Equal(t, uint8(0), img.GrayAt(3, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(3, 5).Y)
}

func TestIconRasterPlaceholder(t *testing.T) {
	e := newTestEngine(config.Default().Layout)

	img, err := e.IconRaster("laundry")
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())

	// Outline crosses the horizontal midline near the left edge.
	assert.Equal(t, uint8(0), img.GrayAt(8, 64).Y)
	// The letter sits in the middle.
	ink := InkBounds(img, 128)
	assert.False(t, ink.Empty())
	assert.Equal(t, uint8(255), img.GrayAt(1, 1).Y)
}

func TestPlaceholderSize(t *testing.T) {
	assert.Equal(t, 96, PlaceholderSize(200))
	assert.Equal(t, 128, PlaceholderSize(512))
	assert.Equal(t, 192, PlaceholderSize(1000))
}

func TestPlaceholderLetter(t *testing.T) {
	assert.Equal(t, "L", placeholderLetter("laundry"))
	assert.Equal(t, "É", placeholderLetter("école"))
	assert.Equal(t, "?", placeholderLetter("  "))
}

func TestImageRaster(t *testing.T) {
	e := newTestEngine(config.Default().Layout)

	img, err := e.ImageRaster(encodePNG(t, 30, 15), "")
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())

	_, err = e.ImageRaster([]byte("not an image"), "")
	assert.Error(t, err)

	_, err = e.ImageRaster(nil, "")
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = e.ImageRaster(nil, filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestToGrayFlattensTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{A: 255})
	g := ToGray(img)
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(1, 0).Y)
}
