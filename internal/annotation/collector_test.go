package annotation

import (
	"testing"

	"annotation-backend/internal/engine"
	"annotation-backend/internal/engine/enginetest"
)

func TestCollectFeverExample(t *testing.T) {
	cas := engine.NewCAS(enginetest.FeverText)
	if err := enginetest.AnnotateFever(cas); err != nil {
		t.Fatalf("annotate: %v", err)
	}

	res := Collect(cas)
	if len(res.Syntax) != 1 || res.Syntax[0].Type != "Token" {
		t.Fatalf("unexpected syntax groups %+v", res.Syntax)
	}
	tok := res.Syntax[0].Records[0]
	if tok.Text != "fever" || tok.Begin != 15 || tok.End != 20 {
		t.Fatalf("unexpected token span %+v", tok.Span)
	}
	if tok.ID != Absent || tok.Relation != nil || tok.Dependent != nil {
		t.Fatalf("plain token must not carry dependency fields: %+v", tok)
	}
	if tok.Token != 3 {
		t.Fatalf("token number = %d, want 3", tok.Token)
	}

	if len(res.Semantic) != 1 || res.Semantic[0].Type != "SignSymptomMention" {
		t.Fatalf("unexpected semantic groups %+v", res.Semantic)
	}
	m := res.Semantic[0].Records[0]
	if m.Text != "fever" || m.Polarity != -1 || m.Subject != "patient" || m.HistoryOf != 0 {
		t.Fatalf("unexpected mention %+v", m)
	}
	if len(m.Concepts) != 0 {
		t.Fatalf("expected no concepts, got %+v", m.Concepts)
	}
}

// "no fever today": "fever" is the root, the other two words hang off it.
func dependencyCAS(t *testing.T) *engine.CAS {
	t.Helper()
	cas := engine.NewCAS("no fever today")
	root := engine.NewDependencyNode(3, 8)
	nodes := []*engine.DependencyNode{
		engine.NewDependencyNode(0, 2).SetHead(root).SetRelation("neg"),
		root.SetRelation("root"),
		engine.NewDependencyNode(9, 14).SetHead(root).SetRelation("tmod"),
	}
	for _, n := range nodes {
		if err := cas.Add(n); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return cas
}

func TestCollectAssignsSequentialIDsInFirstEncounterOrder(t *testing.T) {
	res := Collect(dependencyCAS(t))
	if len(res.Syntax) != 1 || res.Syntax[0].Type != "ConllDependencyNode" {
		t.Fatalf("unexpected groups %+v", res.Syntax)
	}
	recs := res.Syntax[0].Records

	tests := []struct {
		text     string
		id       int
		relation string
		depID    int
		depText  string
	}{
		{"no", 1, "neg", 2, "fever"},
		{"fever", 2, "root", 0, ""},
		{"today", 3, "tmod", 2, "fever"},
	}
	for i, tt := range tests {
		rec := recs[i]
		if rec.Text != tt.text || rec.ID != tt.id {
			t.Fatalf("record %d = %q id %d, want %q id %d", i, rec.Text, rec.ID, tt.text, tt.id)
		}
		if rec.Relation == nil || *rec.Relation != tt.relation {
			t.Fatalf("record %d relation = %v, want %q", i, rec.Relation, tt.relation)
		}
		if rec.Token != Absent {
			t.Fatalf("dependency node must not carry a token number")
		}
		if tt.depText == "" {
			if rec.Dependent != nil {
				t.Fatalf("record %d: root must have no dependent, got %+v", i, rec.Dependent)
			}
			continue
		}
		if rec.Dependent == nil {
			t.Fatalf("record %d: missing dependent", i)
		}
		want := Dependent{ID: tt.depID, Begin: 3, End: 8, Text: tt.depText}
		if *rec.Dependent != want {
			t.Fatalf("record %d dependent = %+v, want %+v", i, *rec.Dependent, want)
		}
	}
}

func TestCollectIsDeterministic(t *testing.T) {
	a := Collect(dependencyCAS(t))
	b := Collect(dependencyCAS(t))
	for i := range a.Syntax[0].Records {
		ra, rb := a.Syntax[0].Records[i], b.Syntax[0].Records[i]
		if ra.ID != rb.ID || ra.Text != rb.Text {
			t.Fatalf("record %d differs across runs: %+v vs %+v", i, ra, rb)
		}
	}
}

func TestCollectOmitsRelationWhenEngineHasNone(t *testing.T) {
	cas := engine.NewCAS("fever")
	if err := cas.Add(engine.NewDependencyNode(0, 5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec := Collect(cas).Syntax[0].Records[0]
	if rec.Relation != nil || rec.Dependent != nil || rec.ID != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestCollectGroupsByShortNameInDiscoveryOrder(t *testing.T) {
	cas := engine.NewCAS("Chest pain at rest, 2 days.")
	adds := []engine.Annotation{
		engine.NewToken(engine.SyntaxNamespace+"WordToken", 0, 5, 0),
		engine.NewSpan(engine.SyntaxNamespace+"Chunk", 0, 10),
		engine.NewToken(engine.SyntaxNamespace+"WordToken", 6, 10, 1),
		engine.NewToken(engine.SyntaxNamespace+"PunctuationToken", 18, 19, 4),
		engine.NewToken(engine.SyntaxNamespace+"NumToken", 20, 21, 5),
		engine.NewSpan(engine.TextSemNamespace+"Segment", 0, 27),
		engine.NewMention(engine.TextSemNamespace+"SignSymptomMention", 0, 10, engine.Attributes{}),
		engine.NewMention(engine.TextSemNamespace+"AnatomicalSiteMention", 0, 5, engine.Attributes{}),
	}
	for _, a := range adds {
		if err := cas.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	res := Collect(cas)
	var syntaxTypes []string
	for _, g := range res.Syntax {
		syntaxTypes = append(syntaxTypes, g.Type)
	}
	wantSyntax := []string{"Chunk", "WordToken", "PunctuationToken", "NumToken"}
	if len(syntaxTypes) != len(wantSyntax) {
		t.Fatalf("syntax groups = %v, want %v", syntaxTypes, wantSyntax)
	}
	for i := range wantSyntax {
		if syntaxTypes[i] != wantSyntax[i] {
			t.Fatalf("syntax groups = %v, want %v", syntaxTypes, wantSyntax)
		}
	}
	if got := len(res.Syntax[1].Records); got != 2 {
		t.Fatalf("WordToken records = %d, want 2", got)
	}
	if res.Syntax[0].Records[0].Token != Absent {
		t.Fatalf("chunk must not carry a token number")
	}
	if len(res.Semantic) != 2 || res.Semantic[0].Type != "SignSymptomMention" || res.Semantic[1].Type != "AnatomicalSiteMention" {
		t.Fatalf("unexpected semantic groups %+v", res.Semantic)
	}
	if res.SyntaxCount() != 5 || res.SemanticCount() != 2 {
		t.Fatalf("counts = %d/%d", res.SyntaxCount(), res.SemanticCount())
	}
}

func TestCollectedSpansStayInBounds(t *testing.T) {
	cas := engine.NewCAS("Fièvre modérée, pas de toux.")
	adds := []engine.Annotation{
		engine.NewToken(engine.SyntaxNamespace+"WordToken", 0, 6, 0),
		engine.NewToken(engine.SyntaxNamespace+"WordToken", 7, 14, 1),
		engine.NewToken(engine.SyntaxNamespace+"WordToken", 23, 27, 4),
		engine.NewMention(engine.TextSemNamespace+"SignSymptomMention", 23, 27, engine.Attributes{Polarity: -1}),
	}
	for _, a := range adds {
		if err := cas.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := cas.Add(engine.NewSpan(engine.SyntaxNamespace+"Chunk", 20, 40)); err == nil {
		t.Fatalf("expected out-of-range span to be rejected")
	}

	res := Collect(cas)
	n := cas.Len()
	for _, g := range res.Syntax {
		for _, r := range g.Records {
			if r.Begin < 0 || r.Begin > r.End || r.End > n {
				t.Fatalf("syntax span out of bounds: %+v", r.Span)
			}
		}
	}
	for _, g := range res.Semantic {
		for _, r := range g.Records {
			if r.Begin < 0 || r.Begin > r.End || r.End > n {
				t.Fatalf("semantic span out of bounds: %+v", r.Span)
			}
		}
	}
	if got := res.Semantic[0].Records[0].Text; got != "toux" {
		t.Fatalf("covered text = %q, want toux", got)
	}
}
