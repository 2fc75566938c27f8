package render

import (
	"strings"
	"unicode/utf8"

	"github.com/orrn/taskprinter/internal/config"
)

// Sizing holds the bounds and heuristic thresholds of the dynamic font size
// search. The thresholds were tuned by eye on 512px receipts.
type Sizing struct {
	Base int
	Min  int
	Max  int

	// MaxOverflowChars is the longest second line that still triggers the
	// shrink-to-one-line search.
	MaxOverflowChars int
	// ShortTextChars also triggers that search for any two-line text up to
	// this many runes.
	ShortTextChars int
	FineStep       int
	CoarseStep     int
	MaxLines       int
	TargetLines    int
	// ComfortMargin is how far above Min a size must be for an exact
	// TargetLines match to end the search early.
	ComfortMargin int
}

func DefaultSizing() Sizing {
	return SizingFromConfig(config.Default().Layout)
}

func SizingFromConfig(l config.LayoutConfig) Sizing {
	return Sizing{
		Base:             l.TaskFontSize,
		Min:              l.MinFontSize,
		Max:              l.MaxFontSize,
		MaxOverflowChars: l.MaxOverflowChars,
		ShortTextChars:   l.Sizing.ShortTextChars,
		FineStep:         l.Sizing.FineStep,
		CoarseStep:       l.Sizing.CoarseStep,
		MaxLines:         l.Sizing.MaxLines,
		TargetLines:      l.Sizing.TargetLines,
		ComfortMargin:    l.Sizing.ComfortMargin,
	}
}

func (s Sizing) normalized() Sizing {
	if s.Min < 1 {
		s.Min = 1
	}
	if s.Max < s.Min {
		s.Max = s.Min
	}
	s.Base = s.clamp(s.Base)
	if s.FineStep < 1 {
		s.FineStep = 2
	}
	if s.CoarseStep < 1 {
		s.CoarseStep = 4
	}
	if s.MaxLines < 1 {
		s.MaxLines = 6
	}
	return s
}

func (s Sizing) clamp(size int) int {
	if size < s.Min {
		return s.Min
	}
	if size > s.Max {
		return s.Max
	}
	return size
}

// FindOptimalFontSize picks a font size for text wrapped into maxWidth. The
// result is always within [Min, Max].
//
// Text that wraps onto exactly two lines at the base size because of a short
// overflow is shrunk in fine steps until it fits one line. Otherwise sizes
// are scanned from Max down in coarse steps, keeping the one with the fewest
// lines (larger wins ties) and stopping at an exact TargetLines match that
// is comfortably above Min.
func FindOptimalFontSize(text string, fonts FontSource, s Sizing, maxWidth int) (*Font, int, error) {
	s = s.normalized()

	base, err := fonts.Resolve(s.Base)
	if err != nil {
		return nil, 0, err
	}

	lines := Wrap(text, base, maxWidth)
	if len(lines) == 2 && s.fewCharsOverflow(text, lines) {
		for size := s.Base - s.FineStep; size >= s.Min; size -= s.FineStep {
			f, err := fonts.Resolve(size)
			if err != nil {
				return nil, 0, err
			}
			if len(Wrap(text, f, maxWidth)) == 1 {
				return f, size, nil
			}
		}
	}

	var best *Font
	bestLines := 0
	for size := s.Max; size >= s.Min; size -= s.CoarseStep {
		f, err := fonts.Resolve(size)
		if err != nil {
			return nil, 0, err
		}
		n := len(Wrap(text, f, maxWidth))
		if n > s.MaxLines {
			continue
		}
		if best == nil || n < bestLines {
			best, bestLines = f, n
		}
		if n == s.TargetLines && size >= s.Min+s.ComfortMargin {
			break
		}
	}

	if best == nil {
		return base, s.Base, nil
	}
	return best, best.Size(), nil
}

func (s Sizing) fewCharsOverflow(text string, lines []string) bool {
	if utf8.RuneCountInString(lines[1]) <= s.MaxOverflowChars {
		return true
	}
	if len(strings.Fields(text)) == 2 {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) <= s.ShortTextChars
}
