// Package dictionary is an in-process engine that finds mentions by exact
// term lookup in a YAML dictionary.
package dictionary

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"annotation-backend/internal/engine"
)

//go:embed default.yaml
var defaultDictionary []byte

// File is the YAML layout of a dictionary.
type File struct {
	Mentions    []MentionEntry      `yaml:"mentions"`
	Negations   []string            `yaml:"negations"`
	HistoryCues []string            `yaml:"history"`
	Subject     string              `yaml:"subject"`
	SubjectCues map[string][]string `yaml:"subjects"`
}

// MentionEntry maps surface terms to one mention type and its concepts.
type MentionEntry struct {
	Type     string         `yaml:"type"`
	Terms    []string       `yaml:"terms"`
	Concepts []ConceptEntry `yaml:"concepts"`
}

// ConceptEntry is one vocabulary entry attached to a mention.
type ConceptEntry struct {
	CodingScheme  string `yaml:"codingScheme"`
	Code          string `yaml:"code"`
	CUI           string `yaml:"cui"`
	TUI           string `yaml:"tui"`
	PreferredText string `yaml:"preferredText"`
}

type term struct {
	words    []string
	typ      engine.Type
	concepts []engine.Concept
}

// Dictionary is a loaded, indexed dictionary. It is read-only after Load and
// implements engine.Engine.
type Dictionary struct {
	terms     map[string][]term
	negations map[string]struct{}
	history   map[string]struct{}
	subjects  map[string]string
	subject   string
}

// Load reads a dictionary file. An empty path loads the bundled default.
func Load(path string) (*Dictionary, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultDictionary)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return Parse(data)
}

// Parse decodes and indexes a dictionary.
func Parse(data []byte) (*Dictionary, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	if len(f.Mentions) == 0 {
		return nil, fmt.Errorf("dictionary has no mentions")
	}

	d := &Dictionary{
		terms:     make(map[string][]term),
		negations: wordSet(f.Negations),
		history:   wordSet(f.HistoryCues),
		subjects:  make(map[string]string),
		subject:   strings.TrimSpace(f.Subject),
	}
	if d.subject == "" {
		d.subject = "patient"
	}
	for subject, cues := range f.SubjectCues {
		for _, cue := range cues {
			d.subjects[normalize(cue)] = subject
		}
	}

	for i, m := range f.Mentions {
		if strings.TrimSpace(m.Type) == "" {
			return nil, fmt.Errorf("mention %d has no type", i)
		}
		typ := engine.Type(m.Type)
		if !strings.Contains(m.Type, ".") {
			typ = engine.Type(engine.TextSemNamespace + m.Type)
		}
		concepts := make([]engine.Concept, 0, len(m.Concepts))
		for _, c := range m.Concepts {
			concepts = append(concepts, engine.UMLSConcept{
				Scheme:        c.CodingScheme,
				CodeValue:     c.Code,
				CUI:           c.CUI,
				TUI:           c.TUI,
				PreferredText: c.PreferredText,
			})
		}
		for _, raw := range m.Terms {
			words := termWords(raw)
			if len(words) == 0 {
				continue
			}
			d.terms[words[0]] = append(d.terms[words[0]], term{words: words, typ: typ, concepts: concepts})
		}
	}
	return d, nil
}

// NewFactory returns a factory that loads the dictionary at path.
func NewFactory(path string) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Load(path)
	}
}

// Process tokenizes the text, links tokens into a dependency chain per
// sentence and adds a mention for each longest dictionary match.
func (d *Dictionary) Process(ctx context.Context, cas *engine.CAS) error {
	toks := tokenize(cas.Text())
	for _, sent := range sentences(toks) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.annotateSentence(cas, sent); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dictionary) annotateSentence(cas *engine.CAS, sent []token) error {
	var root *engine.DependencyNode
	for _, t := range sent {
		if err := cas.Add(engine.NewToken(t.kind.typ(), t.begin, t.end, t.number)); err != nil {
			return err
		}
		node := engine.NewDependencyNode(t.begin, t.end)
		switch {
		case root == nil && t.kind != punctuation:
			root = node.SetRelation("root")
		case t.kind == punctuation:
			node.SetRelation("punct")
		default:
			node.SetRelation("dep")
		}
		if root != nil && node != root {
			node.SetHead(root)
		}
		if err := cas.Add(node); err != nil {
			return err
		}
	}

	polarity, subject, historyOf := 1, d.subject, 0
	for i := 0; i < len(sent); {
		word := sent[i].norm
		if _, ok := d.negations[word]; ok {
			polarity = -1
		}
		if _, ok := d.history[word]; ok {
			historyOf = 1
		}
		if s, ok := d.subjects[word]; ok {
			subject = s
		}

		match, n := d.longestMatch(sent[i:])
		if n == 0 {
			i++
			continue
		}
		mention := engine.NewMention(match.typ, sent[i].begin, sent[i+n-1].end, engine.Attributes{
			Polarity:  polarity,
			Subject:   subject,
			HistoryOf: historyOf,
		}, match.concepts...)
		if err := cas.Add(mention); err != nil {
			return err
		}
		i += n
	}
	return nil
}

func (d *Dictionary) longestMatch(toks []token) (term, int) {
	var best term
	bestLen := 0
	for _, cand := range d.terms[toks[0].norm] {
		if len(cand.words) <= bestLen || len(cand.words) > len(toks) {
			continue
		}
		ok := true
		for j, w := range cand.words {
			if toks[j].norm != w {
				ok = false
				break
			}
		}
		if ok {
			best, bestLen = cand, len(cand.words)
		}
	}
	return best, bestLen
}

func wordSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if n := normalize(w); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func termWords(raw string) []string {
	toks := tokenize(raw)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.norm)
	}
	return out
}
