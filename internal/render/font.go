package render

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	"github.com/orrn/taskprinter/internal/config"
)

var ErrFontNotFound = errors.New("no usable font found")

// Measurer reports the pixel width of a string.
type Measurer interface {
	Width(s string) int
}

// FontSource yields a font at a given pixel size.
type FontSource interface {
	Resolve(size int) (*Font, error)
}

// Font is a face at a fixed pixel size. A Font must not be shared between
// goroutines.
type Font struct {
	face   font.Face
	sfnt   *sfnt.Font
	size   int
	source string
}

func (f *Font) Face() font.Face { return f.face }
func (f *Font) Size() int       { return f.size }
func (f *Font) Source() string  { return f.source }

func (f *Font) Width(s string) int {
	return font.MeasureString(f.face, s).Ceil()
}

// LineHeight is the ink height of "A", used as the line pitch before spacing.
func (f *Font) LineHeight() int {
	b, _ := font.BoundString(f.face, "A")
	h := (b.Max.Y - b.Min.Y).Ceil()
	if h < 1 {
		return 1
	}
	return h
}

func (f *Font) Ascent() int {
	return f.face.Metrics().Ascent.Ceil()
}

// HasGlyphs reports whether every non-space rune of s maps to a real glyph.
func (f *Font) HasGlyphs(s string) bool {
	if f.sfnt == nil {
		return true
	}
	var buf sfnt.Buffer
	for _, r := range s {
		if r == ' ' {
			continue
		}
		idx, err := f.sfnt.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			return false
		}
	}
	return true
}

// Resolver loads the first parseable font from an ordered list of paths,
// then falls back to embedded font bytes. Parsed fonts are cached; faces are
// created per call.
type Resolver struct {
	paths    []string
	fallback []byte

	mu     sync.Mutex
	parsed map[string]*sfnt.Font
	failed map[string]bool
}

func NewResolver(paths []string, fallback []byte) *Resolver {
	return &Resolver{
		paths:    paths,
		fallback: fallback,
		parsed:   make(map[string]*sfnt.Font),
		failed:   make(map[string]bool),
	}
}

// NewTextResolver orders the configured font path, the environment
// override and the candidate list, with Go Regular as the packaged fallback.
func NewTextResolver(l config.LayoutConfig) *Resolver {
	paths := append([]string{l.FontPath, l.FontOverride}, l.FontCandidates...)
	return NewResolver(paths, goregular.TTF)
}

// NewEmojiResolver tries the emoji font settings and then the configured
// text fonts. It has no packaged fallback so a missing emoji font is visible
// to the caller.
func NewEmojiResolver(l config.LayoutConfig) *Resolver {
	paths := append([]string{l.EmojiFontPath, l.EmojiFontOverride}, l.EmojiFontCandidates...)
	paths = append(paths, l.FontPath, l.FontOverride)
	paths = append(paths, l.FontCandidates...)
	return NewResolver(paths, nil)
}

func (r *Resolver) Resolve(size int) (*Font, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid font size %d", size)
	}

	src, f := r.load()
	if f == nil {
		return nil, ErrFontNotFound
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face from %s: %w", src, err)
	}

	return &Font{face: face, sfnt: f, size: size, source: src}, nil
}

func (r *Resolver) load() (string, *sfnt.Font) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.paths {
		if p == "" || r.failed[p] {
			continue
		}
		if f, ok := r.parsed[p]; ok {
			return p, f
		}
		f, err := parseFontFile(p)
		if err != nil {
			r.failed[p] = true
			continue
		}
		r.parsed[p] = f
		return p, f
	}

	if len(r.fallback) == 0 {
		return "", nil
	}
	const key = "<packaged>"
	if f, ok := r.parsed[key]; ok {
		return key, f
	}
	f, err := opentype.Parse(r.fallback)
	if err != nil {
		return "", nil
	}
	r.parsed[key] = f
	return key, f
}

func parseFontFile(path string) (*sfnt.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".ttc") {
		c, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, err
		}
		return c.Font(0)
	}
	return opentype.Parse(data)
}
