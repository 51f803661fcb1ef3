// ABOUTME: Blocked-term filter for conversation messages using an Aho-Corasick automaton
// ABOUTME: Matches on a normalized view of the text and masks the original characters

package moderation

import (
	"fmt"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks blocked terms. The zero value and a Moderator built from
// an empty term list pass text through unchanged.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement string
}

// New builds a moderator for terms. Each maximal masked run of the original
// text is replaced by replacement.
func New(terms []string, replacement string) (*Moderator, error) {
	patterns := make([][]rune, 0, len(terms))
	for _, t := range terms {
		if p := normalizeRunes([]rune(t)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if replacement == "" {
		replacement = "***"
	}
	m := &Moderator{replacement: replacement}
	if len(patterns) == 0 {
		return m, nil
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, fmt.Errorf("build moderation automaton: %w", err)
	}
	m.matcher = machine
	return m, nil
}

// Censor returns text with blocked terms masked and whether anything matched.
func (m *Moderator) Censor(text string) (string, bool) {
	if m == nil || m.matcher == nil || text == "" {
		return text, false
	}

	orig := []rune(text)
	norm, origIdx := normalize(orig)
	if len(norm) == 0 {
		return text, false
	}

	hits := m.matcher.MultiPatternSearch(norm, false)
	if len(hits) == 0 {
		return text, false
	}

	masked := make([]bool, len(orig))
	for _, h := range hits {
		start, end := h.Pos, h.Pos+len(h.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			masked[i] = true
		}
	}

	var b strings.Builder
	for i := 0; i < len(orig); i++ {
		if !masked[i] {
			b.WriteRune(orig[i])
			continue
		}
		b.WriteString(m.replacement)
		for i+1 < len(orig) && masked[i+1] {
			i++
		}
	}
	return b.String(), true
}

// normalize lower-cases, undoes common character substitutions and drops
// noise, recording where each kept rune came from.
func normalize(in []rune) ([]rune, []int) {
	norm := make([]rune, 0, len(in))
	idx := make([]int, 0, len(in))
	for i, r := range in {
		c := simplify(r)
		if isNoise(c) {
			continue
		}
		norm = append(norm, unicode.ToLower(c))
		idx = append(idx, i)
	}
	return norm, idx
}

func normalizeRunes(in []rune) []rune {
	out, _ := normalize(in)
	return out
}

func simplify(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
