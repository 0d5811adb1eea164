// Package validate holds the pure input checks applied before any event
// touches registry or session state. Failures short-circuit the handler; the
// functions themselves never mutate anything.
package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	// MaxMessageRunes caps chat message length after trimming.
	MaxMessageRunes = 500
	// MaxInterests caps the interest list; extra entries are dropped, never an
	// error.
	MaxInterests = 10
	// Display name bounds after trimming.
	MinDisplayNameRunes = 3
	MaxDisplayNameRunes = 50
)

// MessageText trims the text and reports whether it is sendable: non-empty
// and at most MaxMessageRunes runes. Limits count runes, not bytes, so
// multi-byte scripts get the same budget.
func MessageText(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return "", false
	}
	return text, true
}

// Interests sanitizes an interest list: entries are trimmed, empties dropped,
// duplicates collapsed, and anything beyond MaxInterests discarded. A bad
// entry never fails the whole list.
func Interests(raw []string) []string {
	trimmed := make([]string, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		trimmed = append(trimmed, entry)
	}
	out := lo.Uniq(trimmed)
	if len(out) > MaxInterests {
		out = out[:MaxInterests]
	}
	return out
}

// DisplayName trims the name and reports whether it is acceptable:
// MinDisplayNameRunes to MaxDisplayNameRunes runes inclusive.
func DisplayName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < MinDisplayNameRunes || n > MaxDisplayNameRunes {
		return "", false
	}
	return name, true
}
