package render

import (
	"image"
	"log/slog"
	"math"

	"github.com/orrn/taskprinter/internal/config"
)

// flairColumnFloor is the narrowest the flair column may shrink to when
// making room for text.
const flairColumnFloor = 128

// Engine composes receipt rasters. It is used from a single goroutine.
type Engine struct {
	layout config.LayoutConfig
	sizing Sizing
	fonts  FontSource
	emoji  FontSource
	icons  IconSet
	logger *slog.Logger
}

func NewEngine(layout config.LayoutConfig, fonts, emoji FontSource, icons IconSet, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		layout: layout,
		sizing: SizingFromConfig(layout),
		fonts:  fonts,
		emoji:  emoji,
		icons:  icons,
		logger: logger,
	}
}

func (e *Engine) Layout() config.LayoutConfig { return e.layout }

// SetSizing replaces the dynamic sizing thresholds.
func (e *Engine) SetSizing(s Sizing) { e.sizing = s }

func (e *Engine) textFont(text string, maxWidth int) (*Font, error) {
	if !e.layout.EnableDynamicFontSizing {
		return e.fonts.Resolve(e.layout.TaskFontSize)
	}
	f, _, err := FindOptimalFontSize(text, e.fonts, e.sizing, maxWidth)
	return f, err
}

// RenderTextOnly wraps text across the printable width and draws it top to
// bottom.
func (e *Engine) RenderTextOnly(text string) (*Canvas, error) {
	l := e.layout
	width := l.ReceiptWidth
	maxWidth := max(1, width-l.LeftMargin-l.RightMargin)

	f, err := e.textFont(text, maxWidth)
	if err != nil {
		return nil, err
	}

	lines := Wrap(text, f, maxWidth)
	pitch := f.LineHeight() + l.LineSpacing
	height := l.TopMargin + l.BottomMargin + len(lines)*pitch

	c := NewCanvas(width, height)
	for i, line := range lines {
		c.DrawText(f.Face(), line, l.LeftMargin, l.TopMargin+i*pitch)
	}
	return c, nil
}

// RenderTextWithFlair lays text out on the left and the flair raster in a
// fixed column on the right, separated by a vertical rule. When the text
// column cannot be made wide enough it renders text only.
func (e *Engine) RenderTextWithFlair(text string, flair image.Image) (*Canvas, error) {
	if flair == nil {
		return e.RenderTextOnly(text)
	}

	l := e.layout
	width := l.ReceiptWidth
	gap := l.FlairSeparatorGap
	rule := l.FlairSeparatorWidth
	colTarget := l.FlairColWidth
	minText := l.EffectiveMinTextWidth()

	blockWidth := gap + rule + gap + colTarget
	textCol := width - l.LeftMargin - l.RightMargin - blockWidth

	if textCol < minText {
		colTarget = max(flairColumnFloor, colTarget-(minText-textCol))
		blockWidth = gap + rule + gap + colTarget
		textCol = width - l.LeftMargin - l.RightMargin - blockWidth
	}

	if textCol <= 0 || colTarget <= 0 {
		e.logger.Debug("flair layout infeasible, rendering text only",
			"width", width, "text_col", textCol, "flair_col", colTarget)
		return e.RenderTextOnly(text)
	}

	wrapWidth := max(1, textCol-l.TextSafetyMargin)
	f, err := e.textFont(text, wrapWidth)
	if err != nil {
		return nil, err
	}
	lines := Wrap(text, f, wrapWidth)
	pitch := f.LineHeight() + l.LineSpacing
	textHeight := l.TopMargin + l.BottomMargin + len(lines)*pitch

	src := flair.Bounds()
	fw, fh := max(1, src.Dx()), max(1, src.Dy())
	targetHeight := l.FlairTargetHeight
	ratio := math.Min(float64(colTarget)/float64(fw), float64(targetHeight)/float64(fh))
	ratio = math.Max(0.01, math.Min(ratio, l.FlairIconScaleMax))
	newW := max(1, int(math.Round(float64(fw)*ratio)))
	newH := max(1, int(math.Round(float64(fh)*ratio)))
	scaled := Scale(flair, newW, newH)

	height := max(textHeight, l.TopMargin+l.BottomMargin+targetHeight)
	c := NewCanvas(width, height)

	for i, line := range lines {
		c.DrawText(f.Face(), line, l.LeftMargin, l.TopMargin+i*pitch)
	}

	flairRight := width - l.RightMargin
	flairLeft := flairRight - colTarget

	ruleX := flairLeft - gap - rule
	ruleX = max(l.LeftMargin, min(ruleX, width-l.RightMargin-rule))
	ruleBottom := max(l.TopMargin, height-l.BottomMargin)
	c.FillRect(image.Rect(ruleX, l.TopMargin, ruleX+rule, ruleBottom))

	x := flairLeft + max(0, (colTarget-newW)/2)
	y := l.TopMargin + max(0, (height-l.TopMargin-l.BottomMargin-newH)/2)
	x = max(0, min(x, width-newW))
	y = max(0, min(y, height-newH))
	c.Paste(scaled, x, y)

	e.logger.Debug("composed flair receipt",
		"text_col", textCol, "flair_col", colTarget, "rule_x", ruleX,
		"flair_x", x, "flair_y", y, "flair_w", newW, "flair_h", newH, "height", height)

	return c, nil
}
