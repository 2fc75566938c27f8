package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/taskprinter/internal/config"
)

func TestNormalizeEmoji(t *testing.T) {
	tests := map[string]string{
		"✅":            "✔",
		"✔\ufe0f":      "✔",
		"⚠\ufe0f":      "⚠",
		" ⭐ ":          "★",
		"🔹":            "◆",
		"➡\ufe0f":      "→",
		"⬅":            "←",
		"⬆\ufe0f":      "↑",
		"⬇\ufe0f":      "↓",
		"❤\ufe0f":      "❤",
		"💔":            "♥",
		"a\u200db":     "ab",
		"✅✅":           "✅✅",
		"\ufe0f\u200d": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEmoji(in), "input %q", in)
	}
}

func TestEmojiRasterBoxFallback(t *testing.T) {
	e := newTestEngine(config.Default().Layout)

	tests := []struct {
		target int
		want   int
	}{
		{0, 256},
		{2, 8},
		{64, 64},
		{5000, 1024},
	}
	for _, tt := range tests {
		img, err := e.EmojiRaster("🧹", tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, img.Bounds().Dx())
		assert.Equal(t, tt.want, img.Bounds().Dy())
		assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	}
}

func TestEmojiRasterWithFont(t *testing.T) {
	e := NewEngine(config.Default().Layout, packagedFonts(), packagedFonts(), IconSet{}, nil)

	img, err := e.EmojiRaster("▲", 64)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dy())
	assert.Greater(t, img.Bounds().Dx(), 1)
	assert.Less(t, img.Bounds().Dx(), 200)
}

func TestEmojiRasterUncoveredGlyphUsesBox(t *testing.T) {
	e := NewEngine(config.Default().Layout, packagedFonts(), packagedFonts(), IconSet{}, nil)

	img, err := e.EmojiRaster("✅", 48)
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestEmojiRasterEmpty(t *testing.T) {
	_, err := newTestEngine(config.Default().Layout).EmojiRaster(" \ufe0f ", 32)
	assert.ErrorIs(t, err, ErrEmptyEmoji)
}
