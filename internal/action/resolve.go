package action

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Resolve maps a raw model answer onto spec.
//
// Free text is returned verbatim if it has any non-space content. A choice
// answer that equals an option is returned as is; otherwise the first
// matching rung wins:
//
//  1. equal ignoring case, surrounding space and surrounding punctuation
//  2. option appears as a whole word sequence, ignoring case
//  3. option appears anywhere, ignoring case
//
// Inside a rung the option found earliest in the answer wins, then the
// longer option, then the option listed first.
func Resolve(spec Spec, raw string) (string, error) {
	if spec.kind != kindChoice {
		if strings.TrimSpace(raw) == "" {
			return "", ErrEmptyAnswer
		}
		return raw, nil
	}

	for _, o := range spec.options {
		if raw == o {
			return o, nil
		}
	}

	candidate := normalize(raw)
	for _, o := range spec.options {
		if candidate == normalize(o) {
			return o, nil
		}
	}

	lower := strings.ToLower(raw)
	if o, ok := earliest(spec.options, func(opt string) int { return wordIndex(lower, strings.ToLower(opt)) }); ok {
		return o, nil
	}
	if o, ok := earliest(spec.options, func(opt string) int {
		needle := strings.ToLower(opt)
		if needle == "" {
			return -1
		}
		return strings.Index(lower, needle)
	}); ok {
		return o, nil
	}

	return "", fmt.Errorf("%w: %q matches none of %q", ErrUnresolvableChoice, truncate(raw, 80), spec.options)
}

func earliest(options []string, find func(string) int) (string, bool) {
	best, bestPos := -1, -1
	for i, o := range options {
		pos := find(o)
		if pos < 0 {
			continue
		}
		if best < 0 || pos < bestPos || (pos == bestPos && len(o) > len(options[best])) {
			best, bestPos = i, pos
		}
	}
	if best < 0 {
		return "", false
	}
	return options[best], true
}

// wordIndex finds needle in hay where both ends fall on word boundaries.
func wordIndex(hay, needle string) int {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return -1
	}
	for from := 0; from <= len(hay)-len(needle); {
		i := strings.Index(hay[from:], needle)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(needle)
		if boundaryBefore(hay, start) && boundaryAfter(hay, end) {
			return start
		}
		from = start + 1
	}
	return -1
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func normalize(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.ToLower(s)
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
