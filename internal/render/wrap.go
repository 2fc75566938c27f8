package render

import (
	"strings"
	"unicode/utf8"
)

// Words longer than this are split at '-', '_' or '.' before falling back
// to per-character splitting.
const splitSeparatorMinRunes = 8

// Wrap greedily packs whitespace-separated words into lines no wider than
// maxWidth. Only a single rune that is wider than maxWidth on its own can
// produce an overlong line. Empty input yields one empty line.
func Wrap(text string, m Measurer, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""

	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if m.Width(candidate) <= maxWidth {
			current = candidate
			continue
		}

		if current != "" {
			lines = append(lines, current)
			current = ""
		}

		if m.Width(word) <= maxWidth {
			current = word
			continue
		}

		pieces := splitWord(word, m, maxWidth)
		lines = append(lines, pieces[:len(pieces)-1]...)
		current = pieces[len(pieces)-1]
	}

	if current != "" {
		lines = append(lines, current)
	}

	return lines
}

func splitWord(word string, m Measurer, maxWidth int) []string {
	if utf8.RuneCountInString(word) > splitSeparatorMinRunes && strings.ContainsAny(word, "-_.") {
		return packSegments(separatorSegments(word), m, maxWidth)
	}
	return splitRunes(word, m, maxWidth)
}

// separatorSegments cuts after every separator: "a.b-c" -> "a.", "b-", "c".
func separatorSegments(word string) []string {
	var segs []string
	start := 0
	for i, r := range word {
		if r == '-' || r == '_' || r == '.' {
			segs = append(segs, word[start:i+1])
			start = i + 1
		}
	}
	if start < len(word) {
		segs = append(segs, word[start:])
	}
	return segs
}

func packSegments(segs []string, m Measurer, maxWidth int) []string {
	var pieces []string
	current := ""

	for _, seg := range segs {
		if m.Width(current+seg) <= maxWidth {
			current += seg
			continue
		}
		if current != "" {
			pieces = append(pieces, current)
			current = ""
		}
		if m.Width(seg) <= maxWidth {
			current = seg
			continue
		}
		split := splitRunes(seg, m, maxWidth)
		pieces = append(pieces, split[:len(split)-1]...)
		current = split[len(split)-1]
	}

	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

func splitRunes(word string, m Measurer, maxWidth int) []string {
	var pieces []string
	current := ""

	for _, r := range word {
		next := current + string(r)
		if current != "" && m.Width(next) > maxWidth {
			pieces = append(pieces, current)
			next = string(r)
		}
		current = next
	}

	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}
