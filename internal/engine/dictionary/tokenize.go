package dictionary

import (
	"strings"
	"unicode"

	"annotation-backend/internal/engine"
)

type tokenKind int

const (
	word tokenKind = iota
	number
	punctuation
)

func (k tokenKind) typ() engine.Type {
	switch k {
	case number:
		return engine.SyntaxNamespace + "NumToken"
	case punctuation:
		return engine.SyntaxNamespace + "PunctuationToken"
	default:
		return engine.SyntaxNamespace + "WordToken"
	}
}

// token offsets are code point offsets.
type token struct {
	kind   tokenKind
	begin  int
	end    int
	number int
	norm   string
}

func classify(r rune) (tokenKind, bool) {
	switch {
	case unicode.IsSpace(r):
		return 0, false
	case unicode.IsLetter(r) || unicode.IsMark(r):
		return word, true
	case unicode.IsDigit(r):
		return number, true
	default:
		return punctuation, true
	}
}

func tokenize(text string) []token {
	runes := []rune(text)
	var out []token
	for i := 0; i < len(runes); {
		kind, ok := classify(runes[i])
		if !ok {
			i++
			continue
		}
		start := i
		i++
		if kind != punctuation {
			for i < len(runes) {
				next, ok := classify(runes[i])
				if !ok || next != kind {
					break
				}
				i++
			}
		}
		out = append(out, token{
			kind:   kind,
			begin:  start,
			end:    i,
			number: len(out),
			norm:   normalize(string(runes[start:i])),
		})
	}
	return out
}

func sentences(toks []token) [][]token {
	var out [][]token
	start := 0
	for i, t := range toks {
		if t.kind == punctuation && (t.norm == "." || t.norm == "!" || t.norm == "?") {
			out = append(out, toks[start:i+1])
			start = i + 1
		}
	}
	if start < len(toks) {
		out = append(out, toks[start:])
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
