// Package annotation turns an engine's annotation graph into grouped,
// resolved records ready for rendering.
package annotation

// Absent marks an unset id or token number.
const Absent = -1

// Span is the part every record shares. Type is the short type name.
type Span struct {
	Text  string
	Type  string
	Begin int
	End   int
}

// Dependent is the head node a dependency node points at.
type Dependent struct {
	ID    int
	Begin int
	End   int
	Text  string
}

// SyntaxRecord is a token, chunk or dependency node. ID and Token hold
// Absent when they do not apply.
type SyntaxRecord struct {
	Span
	ID        int
	Token     int
	Relation  *string
	Dependent *Dependent
}

// OntologyConcept links a mention to a vocabulary entry. CUI is nil when the
// engine's concept text carried none.
type OntologyConcept struct {
	Code         string
	CodingScheme string
	CUI          *string
}

// SemanticRecord is an identified mention with its attributes.
type SemanticRecord struct {
	Span
	Polarity  int
	Subject   string
	HistoryOf int
	Concepts  []OntologyConcept
}

// SyntaxGroup holds all syntax records of one short type name.
type SyntaxGroup struct {
	Type    string
	Records []SyntaxRecord
}

// SemanticGroup holds all semantic records of one short type name.
type SemanticGroup struct {
	Type    string
	Records []SemanticRecord
}

// Result is the collected output for one document. Groups appear in the
// order their type was first met; records keep discovery order.
type Result struct {
	Syntax   []SyntaxGroup
	Semantic []SemanticGroup
}

// SyntaxCount returns the number of syntax records.
func (r Result) SyntaxCount() int {
	n := 0
	for _, g := range r.Syntax {
		n += len(g.Records)
	}
	return n
}

// SemanticCount returns the number of semantic records.
func (r Result) SemanticCount() int {
	n := 0
	for _, g := range r.Semantic {
		n += len(g.Records)
	}
	return n
}
