package engine

import (
	"fmt"
	"strings"
)

// Type system namespaces used by the engines this service talks to.
const (
	SyntaxNamespace  = "org.apache.ctakes.typesystem.type.syntax."
	TextSemNamespace = "org.apache.ctakes.typesystem.type.textsem."
	RefSemNamespace  = "org.apache.ctakes.typesystem.type.refsem."

	DependencyNodeType = SyntaxNamespace + "ConllDependencyNode"
)

// Type is a fully-qualified annotation type name.
type Type string

// ShortName returns the last dotted segment of the type name.
func (t Type) ShortName() string {
	name := string(t)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// InNamespace reports whether the type lives under the given namespace prefix.
func (t Type) InNamespace(ns string) bool {
	return strings.HasPrefix(string(t), ns)
}

// Annotation is a typed span over the document text.
type Annotation interface {
	Type() Type
	Begin() int
	End() int
}

// TokenAnnotation is implemented by annotations carrying a token number.
type TokenAnnotation interface {
	Annotation
	TokenNumber() int
}

// DependencyAnnotation is a node of a dependency graph.
// Head returns nil for nodes without a head.
type DependencyAnnotation interface {
	Annotation
	Head() DependencyAnnotation
	DependencyRelation() (string, bool)
}

// IdentifiedAnnotation carries semantic attributes and concept links.
type IdentifiedAnnotation interface {
	Annotation
	Polarity() int
	Subject() string
	HistoryOf() int
	Concepts() []Concept
}

// Concept is a raw ontology concept as attached by an engine. String returns
// the engine's textual representation of the whole concept.
type Concept interface {
	Code() string
	CodingScheme() string
	String() string
}

// Span is the plain annotation implementation.
type Span struct {
	typ   Type
	begin int
	end   int
}

// NewSpan builds an annotation of the given type.
func NewSpan(typ Type, begin, end int) *Span {
	return &Span{typ: typ, begin: begin, end: end}
}

func (s *Span) Type() Type { return s.typ }
func (s *Span) Begin() int { return s.begin }
func (s *Span) End() int   { return s.end }

// Token is a span with a token number.
type Token struct {
	Span
	number int
}

// NewToken builds a token annotation.
func NewToken(typ Type, begin, end, number int) *Token {
	return &Token{Span: Span{typ: typ, begin: begin, end: end}, number: number}
}

func (t *Token) TokenNumber() int { return t.number }

// DependencyNode is a dependency graph node. The relation is optional.
type DependencyNode struct {
	Span
	relation    string
	hasRelation bool
	head        *DependencyNode
}

// NewDependencyNode builds a node of type ConllDependencyNode.
func NewDependencyNode(begin, end int) *DependencyNode {
	return &DependencyNode{Span: Span{typ: DependencyNodeType, begin: begin, end: end}}
}

// SetRelation sets the dependency label.
func (n *DependencyNode) SetRelation(rel string) *DependencyNode {
	n.relation = rel
	n.hasRelation = true
	return n
}

// SetHead links the node to its head.
func (n *DependencyNode) SetHead(head *DependencyNode) *DependencyNode {
	n.head = head
	return n
}

func (n *DependencyNode) Head() DependencyAnnotation {
	if n.head == nil {
		return nil
	}
	return n.head
}

func (n *DependencyNode) DependencyRelation() (string, bool) {
	return n.relation, n.hasRelation
}

// Attributes are the semantic attributes of an identified annotation.
type Attributes struct {
	Polarity  int
	Subject   string
	HistoryOf int
}

// Mention is an identified annotation.
type Mention struct {
	Span
	attrs    Attributes
	concepts []Concept
}

// NewMention builds an identified annotation.
func NewMention(typ Type, begin, end int, attrs Attributes, concepts ...Concept) *Mention {
	return &Mention{
		Span:     Span{typ: typ, begin: begin, end: end},
		attrs:    attrs,
		concepts: concepts,
	}
}

func (m *Mention) Polarity() int       { return m.attrs.Polarity }
func (m *Mention) Subject() string     { return m.attrs.Subject }
func (m *Mention) HistoryOf() int      { return m.attrs.HistoryOf }
func (m *Mention) Concepts() []Concept { return m.concepts }

// UMLSConcept is the concept implementation used by the bundled engines.
type UMLSConcept struct {
	Scheme        string
	CodeValue     string
	CUI           string
	TUI           string
	PreferredText string
}

func (c UMLSConcept) Code() string         { return c.CodeValue }
func (c UMLSConcept) CodingScheme() string { return c.Scheme }

// String renders the concept as a feature-structure dump. Empty features are
// left out, so a concept without a CUI carries no cui line.
func (c UMLSConcept) String() string {
	var b strings.Builder
	b.WriteString("UmlsConcept\n")
	writeFeature(&b, "codingScheme", c.Scheme)
	writeFeature(&b, "code", c.CodeValue)
	writeFeature(&b, "cui", c.CUI)
	writeFeature(&b, "tui", c.TUI)
	writeFeature(&b, "preferredText", c.PreferredText)
	return b.String()
}

func writeFeature(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "   %s: %q\n", name, value)
}

var (
	_ TokenAnnotation      = (*Token)(nil)
	_ DependencyAnnotation = (*DependencyNode)(nil)
	_ IdentifiedAnnotation = (*Mention)(nil)
	_ Concept              = UMLSConcept{}
)
