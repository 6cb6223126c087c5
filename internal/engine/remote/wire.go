package remote

import (
	"encoding/json"
	"fmt"

	"annotation-backend/internal/engine"
)

// wireID accepts both string and numeric ids.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("annotation id must be a string or number: %s", string(b))
	}
	*id = wireID(n.String())
	return nil
}

type wireConcept struct {
	CodingScheme  string `json:"codingScheme"`
	Code          string `json:"code"`
	CUI           string `json:"cui,omitempty"`
	TUI           string `json:"tui,omitempty"`
	PreferredText string `json:"preferredText,omitempty"`
}

type wireAnnotation struct {
	ID          wireID        `json:"id"`
	Type        string        `json:"type"`
	Begin       int           `json:"begin"`
	End         int           `json:"end"`
	TokenNumber *int          `json:"tokenNumber,omitempty"`
	Deprel      *string       `json:"deprel,omitempty"`
	Head        *wireID       `json:"head,omitempty"`
	Polarity    *int          `json:"polarity,omitempty"`
	Subject     *string       `json:"subject,omitempty"`
	HistoryOf   *int          `json:"historyOf,omitempty"`
	Concepts    []wireConcept `json:"concepts,omitempty"`
}

// identified reports whether the annotation is a semantic mention. Servers may
// omit default attributes, so the textsem type alone is enough.
func (w wireAnnotation) identified() bool {
	if engine.Type(w.Type).InNamespace(engine.TextSemNamespace) {
		return true
	}
	return w.Polarity != nil || w.Subject != nil || w.HistoryOf != nil || w.Concepts != nil
}

// addAll converts the server's annotations and adds them to cas. Head
// references are resolved after every node is known, so a head may appear
// after its dependents.
func addAll(cas *engine.CAS, items []wireAnnotation) error {
	nodes := make(map[wireID]*engine.DependencyNode)
	type pending struct {
		node *engine.DependencyNode
		head wireID
	}
	var heads []pending
	built := make([]engine.Annotation, 0, len(items))

	for i, w := range items {
		if w.Type == "" {
			return fmt.Errorf("annotation %d has no type", i)
		}
		typ := engine.Type(w.Type)
		var a engine.Annotation
		switch {
		case w.Type == engine.DependencyNodeType:
			node := engine.NewDependencyNode(w.Begin, w.End)
			if w.Deprel != nil {
				node.SetRelation(*w.Deprel)
			}
			if w.ID != "" {
				if _, dup := nodes[w.ID]; dup {
					return fmt.Errorf("duplicate dependency node id %q", w.ID)
				}
				nodes[w.ID] = node
			}
			if w.Head != nil {
				heads = append(heads, pending{node: node, head: *w.Head})
			}
			a = node
		case w.TokenNumber != nil:
			a = engine.NewToken(typ, w.Begin, w.End, *w.TokenNumber)
		case w.identified():
			attrs := engine.Attributes{}
			if w.Polarity != nil {
				attrs.Polarity = *w.Polarity
			}
			if w.Subject != nil {
				attrs.Subject = *w.Subject
			}
			if w.HistoryOf != nil {
				attrs.HistoryOf = *w.HistoryOf
			}
			concepts := make([]engine.Concept, 0, len(w.Concepts))
			for _, c := range w.Concepts {
				concepts = append(concepts, engine.UMLSConcept{
					Scheme:        c.CodingScheme,
					CodeValue:     c.Code,
					CUI:           c.CUI,
					TUI:           c.TUI,
					PreferredText: c.PreferredText,
				})
			}
			a = engine.NewMention(typ, w.Begin, w.End, attrs, concepts...)
		default:
			a = engine.NewSpan(typ, w.Begin, w.End)
		}
		built = append(built, a)
	}

	for _, p := range heads {
		head, ok := nodes[p.head]
		if !ok {
			return fmt.Errorf("dependency head %q not found", p.head)
		}
		p.node.SetHead(head)
	}
	for _, a := range built {
		if err := cas.Add(a); err != nil {
			return err
		}
	}
	return nil
}
