package imapstore

import "strings"

// This tokenizer resembles PHP's strtok, except that it returns ""
// instead of `false` when nothing is left, so it can be used directly
// in conditions. Each response line gets its own tokenizer value that
// is consumed once, front to back.

type lineTokenizer struct {
	s string
	i int
}

func newLineTokenizer(s string) *lineTokenizer {
	return &lineTokenizer{s: s}
}

// next returns the next token delimited by any of delims, skipping
// leading delimiters. Returns "" when the line is exhausted.
func (t *lineTokenizer) next(delims string) string {
	start := t.i
	for t.i < len(t.s) {
		if strings.ContainsRune(delims, rune(t.s[t.i])) {
			if start == t.i {
				start++
			} else {
				t.i++
				return t.s[start : t.i-1]
			}
		}
		t.i++
	}
	return t.s[start:]
}

// quoted returns the next token honoring double quotes: a quoted token
// is returned unescaped without its quotes, a bare token is delimited
// by delims.
func (t *lineTokenizer) quoted(delims string) string {
	for t.i < len(t.s) && strings.ContainsRune(delims, rune(t.s[t.i])) {
		t.i++
	}
	if t.i >= len(t.s) || t.s[t.i] != '"' {
		return t.next(delims)
	}
	t.i++
	start := t.i
	for t.i < len(t.s) {
		if t.s[t.i] == '"' && (t.i == start || t.s[t.i-1] != '\\') {
			tok := t.s[start:t.i]
			t.i++
			return RemoveSlashes.Replace(tok)
		}
		t.i++
	}
	return RemoveSlashes.Replace(t.s[start:])
}

// rest returns everything not yet consumed, without leading spaces.
func (t *lineTokenizer) rest() string {
	return strings.TrimLeft(t.s[t.i:], " ")
}
