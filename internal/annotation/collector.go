package annotation

import (
	"strings"

	"annotation-backend/internal/engine"
)

// Collect walks a processed CAS once for syntax annotations and once for
// identified annotations.
func Collect(cas *engine.CAS) Result {
	c := collector{
		cas:         cas,
		resolver:    newResolver(cas),
		syntaxIdx:   make(map[string]int),
		semanticIdx: make(map[string]int),
	}
	for _, a := range cas.Select() {
		if a.Type().InNamespace(engine.SyntaxNamespace) {
			c.addSyntax(a)
		}
	}
	for _, ia := range cas.Identified() {
		c.addSemantic(ia)
	}
	return c.result
}

type collector struct {
	cas         *engine.CAS
	resolver    *resolver
	result      Result
	syntaxIdx   map[string]int
	semanticIdx map[string]int
}

func (c *collector) span(a engine.Annotation) Span {
	return Span{
		Text:  c.cas.CoveredText(a),
		Type:  a.Type().ShortName(),
		Begin: a.Begin(),
		End:   a.End(),
	}
}

func (c *collector) addSyntax(a engine.Annotation) {
	rec := SyntaxRecord{Span: c.span(a), ID: Absent, Token: Absent}

	if node, ok := a.(engine.DependencyAnnotation); ok {
		rec.ID, rec.Dependent = c.resolver.resolve(node)
		if rel, ok := node.DependencyRelation(); ok {
			rec.Relation = &rel
		}
	}
	if tok, ok := a.(engine.TokenAnnotation); ok && strings.Contains(rec.Type, "Token") {
		rec.Token = tok.TokenNumber()
	}

	idx, ok := c.syntaxIdx[rec.Type]
	if !ok {
		idx = len(c.result.Syntax)
		c.syntaxIdx[rec.Type] = idx
		c.result.Syntax = append(c.result.Syntax, SyntaxGroup{Type: rec.Type})
	}
	c.result.Syntax[idx].Records = append(c.result.Syntax[idx].Records, rec)
}

func (c *collector) addSemantic(a engine.IdentifiedAnnotation) {
	rec := SemanticRecord{
		Span:      c.span(a),
		Polarity:  a.Polarity(),
		Subject:   a.Subject(),
		HistoryOf: a.HistoryOf(),
		Concepts:  ExtractConcepts(a.Concepts()),
	}

	idx, ok := c.semanticIdx[rec.Type]
	if !ok {
		idx = len(c.result.Semantic)
		c.semanticIdx[rec.Type] = idx
		c.result.Semantic = append(c.result.Semantic, SemanticGroup{Type: rec.Type})
	}
	c.result.Semantic[idx].Records = append(c.result.Semantic[idx].Records, rec)
}
