package engine

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// CAS holds one document's text and the annotations an engine added to it.
// Offsets are counted in code points. A CAS belongs to a single request.
type CAS struct {
	text        string
	runes       []rune
	annotations []Annotation
}

// NewCAS creates an empty analysis structure for text.
func NewCAS(text string) *CAS {
	return &CAS{text: text, runes: []rune(text)}
}

// Text returns the document text.
func (c *CAS) Text() string { return c.text }

// Len returns the document length in code points.
func (c *CAS) Len() int { return len(c.runes) }

// Add indexes an annotation after checking its span.
func (c *CAS) Add(a Annotation) error {
	if a == nil {
		return fmt.Errorf("add annotation: nil")
	}
	if a.Begin() < 0 || a.Begin() > a.End() || a.End() > len(c.runes) {
		return fmt.Errorf("add annotation %s: span [%d,%d) outside document of length %d", a.Type().ShortName(), a.Begin(), a.End(), len(c.runes))
	}
	c.annotations = append(c.annotations, a)
	return nil
}

// CoveredText returns the text under the annotation's span.
func (c *CAS) CoveredText(a Annotation) string {
	if a == nil {
		return ""
	}
	begin, end := a.Begin(), a.End()
	if begin < 0 || begin > end || end > len(c.runes) {
		return ""
	}
	return string(c.runes[begin:end])
}

// Select returns all annotations in index order: begin ascending, end
// descending, then insertion order.
func (c *CAS) Select() []Annotation {
	out := make([]Annotation, len(c.annotations))
	copy(out, c.annotations)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Begin() != out[j].Begin() {
			return out[i].Begin() < out[j].Begin()
		}
		return out[i].End() > out[j].End()
	})
	return out
}

// Identified returns the identified annotations in index order.
func (c *CAS) Identified() []IdentifiedAnnotation {
	var out []IdentifiedAnnotation
	for _, a := range c.Select() {
		if ia, ok := a.(IdentifiedAnnotation); ok {
			out = append(out, ia)
		}
	}
	return out
}

// RuneOffset converts a byte offset in the text to a code point offset.
func (c *CAS) RuneOffset(byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= len(c.text) {
		return len(c.runes)
	}
	return utf8.RuneCountInString(c.text[:byteOffset])
}
