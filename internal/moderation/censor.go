// Package moderation masks configured words in chat text before it is
// relayed. Matching is case-insensitive and ignores separator characters, so
// spacing a word out does not slip past the filter.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor is a multi-pattern text filter built once at startup and shared by
// every chat handler. The zero-value nil *Censor is a valid "disabled" filter.
type Censor struct {
	machine *goahocorasick.Machine
	mask    rune
}

// New builds the automaton from the configured word list. An empty list
// returns a nil Censor, which Apply treats as a no-op.
func New(words []string, mask rune) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		folded, _ := fold(word)
		if len(folded) == 0 {
			continue
		}
		patterns = append(patterns, folded)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: m, mask: mask}, nil
}

// Apply replaces every configured word in text with the mask rune and reports
// whether anything was replaced. Unmatched text comes back unchanged.
func (c *Censor) Apply(text string) (string, bool) {
	if c == nil {
		return text, false
	}

	folded, origIdx := fold(text)
	if len(folded) == 0 {
		return text, false
	}

	hits := c.machine.MultiPatternSearch(folded, false)
	if len(hits) == 0 {
		return text, false
	}

	out := []rune(text)
	for _, hit := range hits {
		start := hit.Pos
		end := start + len(hit.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		// Mask the original span covered by the folded match, separators
		// included.
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			out[i] = c.mask
		}
	}
	return string(out), true
}

// fold lowercases the input and strips separators (spaces, punctuation),
// returning the folded runes plus a map from folded index back to the
// original rune index.
func fold(s string) ([]rune, []int) {
	orig := []rune(s)
	folded := make([]rune, 0, len(orig))
	origIdx := make([]int, 0, len(orig))
	for i, r := range orig {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return folded, origIdx
}
