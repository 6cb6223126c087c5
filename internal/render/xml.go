// Package render serializes collected annotations into the AnnotatedOutput
// XML document.
package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"annotation-backend/internal/annotation"
)

// ContentType is the media type of rendered documents.
const ContentType = "text/xml; charset=UTF-8"

// Metadata describes the run that produced a document. FileName is empty
// for text submissions.
type Metadata struct {
	FileName     string
	SourceText   string
	SetupSeconds float64
	Reused       bool
	ParseSeconds float64
}

// Document is everything needed to render one output.
type Document struct {
	Metadata Metadata
	Result   annotation.Result
}

var elementName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

type xmlNode struct {
	Name     string
	Attr     []xml.Attr
	Children []*xmlNode
	Text     string
}

func (n *xmlNode) attr(name, value string) {
	n.Attr = append(n.Attr, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func (n *xmlNode) child(name string) *xmlNode {
	c := &xmlNode{Name: name}
	n.Children = append(n.Children, c)
	return c
}

func textNode(name, text string) *xmlNode {
	return &xmlNode{Name: name, Text: text}
}

// Marshal renders doc to bytes.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes doc as indented UTF-8 XML with a declaration. Elements
// without text or children are written self-closing.
func Encode(w io.Writer, doc Document) error {
	root, err := buildTree(doc)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	writeNode(&buf, root, 0)
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func buildTree(doc Document) (*xmlNode, error) {
	meta := doc.Metadata
	root := &xmlNode{Name: "AnnotatedOutput"}
	root.Children = append(root.Children,
		textNode("FileName", meta.FileName),
		textNode("Input", meta.SourceText),
	)

	syntax := root.child("Syntax")
	for _, g := range doc.Result.Syntax {
		wrapper, err := groupNode(syntax, g.Type)
		if err != nil {
			return nil, err
		}
		for _, rec := range g.Records {
			wrapper.Children = append(wrapper.Children, syntaxNode(g.Type, rec))
		}
	}

	semantic := root.child("Semantic")
	for _, g := range doc.Result.Semantic {
		wrapper, err := groupNode(semantic, g.Type)
		if err != nil {
			return nil, err
		}
		for _, rec := range g.Records {
			wrapper.Children = append(wrapper.Children, semanticNode(g.Type, rec))
		}
	}

	duration := root.child("Duration")
	env := textNode("Environment", FormatSeconds(meta.SetupSeconds))
	env.attr("existed", strconv.FormatBool(meta.Reused))
	duration.Children = append(duration.Children, env, textNode("Parsing", FormatSeconds(meta.ParseSeconds)))
	return root, nil
}

func groupNode(parent *xmlNode, typ string) (*xmlNode, error) {
	if !elementName.MatchString(typ) {
		return nil, fmt.Errorf("render: invalid annotation type name %q", typ)
	}
	return parent.child(typ + "s"), nil
}

func spanAttrs(n *xmlNode, s annotation.Span) {
	n.attr("text", s.Text)
	n.attr("begin", strconv.Itoa(s.Begin))
	n.attr("end", strconv.Itoa(s.End))
}

func syntaxNode(typ string, rec annotation.SyntaxRecord) *xmlNode {
	n := &xmlNode{Name: typ}
	spanAttrs(n, rec.Span)
	if rec.ID >= 0 {
		n.attr("id", strconv.Itoa(rec.ID))
	}
	if rec.Token >= 0 {
		n.attr("token", strconv.Itoa(rec.Token))
	}
	if rec.Relation != nil {
		n.attr("relation", *rec.Relation)
	}
	if dep := rec.Dependent; dep != nil {
		n.attr("dependentBegin", strconv.Itoa(dep.Begin))
		n.attr("dependentEnd", strconv.Itoa(dep.End))
		n.attr("dependentText", dep.Text)
		n.attr("dependentId", strconv.Itoa(dep.ID))
	}
	return n
}

func semanticNode(typ string, rec annotation.SemanticRecord) *xmlNode {
	n := &xmlNode{Name: typ}
	spanAttrs(n, rec.Span)
	n.attr("polarity", strconv.Itoa(rec.Polarity))
	n.attr("subject", rec.Subject)
	n.attr("historyOf", strconv.Itoa(rec.HistoryOf))
	for _, c := range rec.Concepts {
		cn := n.child("concept")
		cn.attr("system", c.CodingScheme)
		cn.attr("code", c.Code)
		cui := ""
		if c.CUI != nil {
			cui = *c.CUI
		}
		cn.attr("cui", cui)
	}
	return n
}

// FormatSeconds renders a duration in seconds in its shortest form.
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeNode(buf *bytes.Buffer, node *xmlNode, depth int) {
	indent(buf, depth)
	buf.WriteByte('<')
	buf.WriteString(node.Name)
	for _, a := range node.Attr {
		buf.WriteByte(' ')
		buf.WriteString(a.Name.Local)
		buf.WriteString(`="`)
		escape(buf, a.Value, true)
		buf.WriteByte('"')
	}
	if node.Text == "" && len(node.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	escape(buf, node.Text, false)
	if len(node.Children) > 0 {
		for _, child := range node.Children {
			buf.WriteByte('\n')
			writeNode(buf, child, depth+1)
		}
		buf.WriteByte('\n')
		indent(buf, depth)
	}
	buf.WriteString("</")
	buf.WriteString(node.Name)
	buf.WriteByte('>')
}

func indent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

// escape writes s as XML character data. Runes outside the XML character
// range become U+FFFD; attribute values also keep their whitespace and quotes.
func escape(buf *bytes.Buffer, s string, attr bool) {
	for _, r := range s {
		switch {
		case r == '&':
			buf.WriteString("&amp;")
		case r == '<':
			buf.WriteString("&lt;")
		case r == '>':
			buf.WriteString("&gt;")
		case r == '"' && attr:
			buf.WriteString("&quot;")
		case r == '\n' && attr:
			buf.WriteString("&#xA;")
		case r == '\t' && attr:
			buf.WriteString("&#x9;")
		case r == '\r':
			buf.WriteString("&#xD;")
		case !xmlChar(r):
			buf.WriteRune('\uFFFD')
		default:
			buf.WriteRune(r)
		}
	}
}

func xmlChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
