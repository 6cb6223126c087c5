package annotation

import (
	"regexp"

	"annotation-backend/internal/engine"
)

var cuiPattern = regexp.MustCompile(`cui: "([^"]*)"`)

// ExtractConcepts normalizes the raw concepts of one mention. The CUI is read
// from each concept's text form; concepts repeating an earlier code are
// dropped regardless of coding scheme.
func ExtractConcepts(raw []engine.Concept) []OntologyConcept {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]OntologyConcept, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		code := c.Code()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, OntologyConcept{
			Code:         code,
			CodingScheme: c.CodingScheme(),
			CUI:          findCUI(c.String()),
		})
	}
	return out
}

func findCUI(text string) *string {
	m := cuiPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	cui := m[1]
	return &cui
}
