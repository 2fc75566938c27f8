package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mono measures every rune as 10px.
type mono struct{}

func (mono) Width(s string) int { return utf8.RuneCountInString(s) * 10 }

func TestWrapMountPegboard(t *testing.T) {
	f, err := packagedFonts().Resolve(72)
	require.NoError(t, err)

	assert.Equal(t, []string{"Mount", "Pegboard"}, Wrap("Mount Pegboard", f, 480))
}

func TestWrapMono(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 100, []string{""}},
		{"whitespace", "   \t ", 100, []string{""}},
		{"fits", "buy milk", 100, []string{"buy milk"}},
		{"greedy", "aaa bbb ccc", 70, []string{"aaa bbb", "ccc"}},
		{"collapses spaces", "  aaa    bbb  ", 70, []string{"aaa bbb"}},
		{"separator split", "a.bcdefgh", 50, []string{"a.", "bcdef", "gh"}},
		{"short word splits per rune", "abc.defg", 50, []string{"abc.d", "efg"}},
		{"per rune", "abcdefghijkl", 50, []string{"abcde", "fghij", "kl"}},
		{"long word after text", "go abcdefgh", 50, []string{"go", "abcde", "fgh"}},
		{"too narrow for one rune", "ab", 5, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.text, mono{}, tt.width))
		})
	}
}

func TestWrapSplitsAtSeparators(t *testing.T) {
	f, err := packagedFonts().Resolve(72)
	require.NoError(t, err)

	lines := Wrap("config.production.yaml", f, 480)
	assert.Equal(t, []string{"config.", "production.", "yaml"}, lines)
}

func TestWrapSplitsLongWordPerRune(t *testing.T) {
	f, err := packagedFonts().Resolve(72)
	require.NoError(t, err)

	word := "supercalifragilisticexpialidocious"
	lines := Wrap(word, f, 480)
	require.Greater(t, len(lines), 1)
	assert.Equal(t, word, strings.Join(lines, ""))
	for _, line := range lines {
		assert.LessOrEqual(t, f.Width(line), 480, line)
	}
}

func TestWrapWidthBound(t *testing.T) {
	texts := []string{
		"Mount Pegboard",
		"Clean the garage and sort all the boxes",
		"Email re: invoice-2024-03-final_v2.pdf before noon",
		"a b c d e f g",
		"Antidisestablishmentarianism",
	}

	for _, size := range []int{24, 48, 72, 96} {
		f, err := packagedFonts().Resolve(size)
		require.NoError(t, err)
		for _, maxWidth := range []int{120, 230, 480} {
			for _, text := range texts {
				for _, line := range Wrap(text, f, maxWidth) {
					if utf8.RuneCountInString(line) == 1 {
						continue
					}
					assert.LessOrEqual(t, f.Width(line), maxWidth, "size=%d width=%d line=%q", size, maxWidth, line)
				}
			}
		}
	}
}
