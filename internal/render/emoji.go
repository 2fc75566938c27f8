package render

import (
	"errors"
	"image"
	"strings"

	"golang.org/x/image/font/basicfont"
)

var ErrEmptyEmoji = errors.New("emoji is empty")

const (
	defaultEmojiHeight = 256
	minEmojiHeight     = 8
	maxEmojiHeight     = 1024
	emojiBoxRunes      = 3
)

// Colored symbols that most monochrome fonts lack, keyed after variation
// selectors and joiners are stripped.
var emojiSubstitutes = map[string]string{
	"✅": "✔",
	"❌": "✖",
	"⭐": "★",
	"✨": "✦",
	"⚠": "⚠",
	"❤": "❤",
	"🖤": "♥",
	"💔": "♥",
	"➡": "→",
	"⬅": "←",
	"⬆": "↑",
	"⬇": "↓",
	"🔺": "▲",
	"🔻": "▼",
	"🔸": "◆",
	"🔹": "◆",
	"⭕": "◯",
	"🔲": "■",
	"🔳": "□",
}

// NormalizeEmoji strips U+FE0F and U+200D and swaps a whole-string match
// for its monochrome equivalent.
func NormalizeEmoji(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\uFE0F' || r == '\u200D' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if sub, ok := emojiSubstitutes[s]; ok {
		return sub
	}
	return s
}

// EmojiRaster draws glyph at roughly targetHeight pixels tall. Without a
// font that covers the glyph it draws a bordered box holding the first few
// runes.
func (e *Engine) EmojiRaster(glyph string, targetHeight int) (*image.Gray, error) {
	if targetHeight <= 0 {
		targetHeight = defaultEmojiHeight
	}
	th := max(minEmojiHeight, min(maxEmojiHeight, targetHeight))

	text := NormalizeEmoji(glyph)
	if text == "" {
		return nil, ErrEmptyEmoji
	}

	if e.emoji == nil {
		return emojiBox(text, th), nil
	}
	f, err := e.emoji.Resolve(th)
	if err != nil || !f.HasGlyphs(text) {
		e.logger.Debug("no emoji font covers glyph, drawing box", "glyph", text, "error", err)
		return emojiBox(text, th), nil
	}

	pad := max(4, th/8)
	side := max(64, th*2)
	w := max(side, f.Width(text)+2*pad)
	c := NewCanvas(w, side)
	c.DrawText(f.Face(), text, pad, pad)

	ink := InkBounds(c.Gray, 128)
	if ink.Empty() {
		return emojiBox(text, th), nil
	}
	cropped := c.SubImage(ink)

	scaledW := max(1, ink.Dx()*th/max(1, ink.Dy()))
	return Scale(cropped, scaledW, th), nil
}

func emojiBox(text string, side int) *image.Gray {
	c := NewCanvas(side, side)
	border := max(1, side/32)
	c.FillRect(image.Rect(0, 0, side, border))
	c.FillRect(image.Rect(0, side-border, side, side))
	c.FillRect(image.Rect(0, 0, border, side))
	c.FillRect(image.Rect(side-border, 0, side, side))

	runes := []rune(text)
	if len(runes) > emojiBoxRunes {
		runes = runes[:emojiBoxRunes]
	}
	drawCentered(c, basicfont.Face7x13, string(runes))
	return c.Gray
}
