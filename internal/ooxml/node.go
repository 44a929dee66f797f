package ooxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	commentNode
	procInstNode
	directiveNode
)

// node is a generic XML tree node. Names keep their source prefix ("w:p")
// because parts are read with raw tokens; namespace declarations are
// ordinary attributes and round-trip untouched.
type node struct {
	kind     nodeKind
	name     string
	attrs    []xml.Attr
	children []*node
	data     string // text, comment, directive or proc inst body
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func localName(q string) string {
	if i := strings.IndexByte(q, ':'); i >= 0 {
		return q[i+1:]
	}
	return q
}

// local returns the element name without prefix.
func (n *node) local() string {
	return localName(n.name)
}

// attr returns the value of the first attribute with the given local name.
func (n *node) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// child returns the first element child with the given local name.
func (n *node) child(local string) *node {
	for _, c := range n.children {
		if c.kind == elementNode && c.local() == local {
			return c
		}
	}
	return nil
}

// elements returns the element children.
func (n *node) elements() []*node {
	out := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		if c.kind == elementNode {
			out = append(out, c)
		}
	}
	return out
}

// shell copies the element name and attributes without children.
func (n *node) shell() *node {
	return &node{kind: elementNode, name: n.name, attrs: append([]xml.Attr(nil), n.attrs...)}
}

// text concatenates all descendant character data.
func (n *node) text() string {
	var b strings.Builder
	var walk func(*node)
	walk = func(c *node) {
		if c.kind == textNode {
			b.WriteString(c.data)
		}
		for _, cc := range c.children {
			walk(cc)
		}
	}
	walk(n)
	return b.String()
}

func newElement(name string, attrs ...xml.Attr) *node {
	return &node{kind: elementNode, name: name, attrs: attrs}
}

func wAttr(local, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Space: "w", Local: local}, Value: value}
}

// parseXML reads r into a document node whose children are the prolog and
// the root element.
func parseXML(r io.Reader) (*node, error) {
	d := xml.NewDecoder(r)
	doc := &node{kind: elementNode}
	stack := []*node{doc}
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &node{kind: elementNode, name: qualified(t.Name), attrs: append([]xml.Attr(nil), t.Attr...)}
			top.children = append(top.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 1 || top.name != qualified(t.Name) {
				return nil, errors.New("unexpected end element </" + qualified(t.Name) + ">")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.children = append(top.children, &node{kind: textNode, data: string(t)})
		case xml.Comment:
			top.children = append(top.children, &node{kind: commentNode, data: string(t)})
		case xml.ProcInst:
			top.children = append(top.children, &node{kind: procInstNode, name: t.Target, data: string(t.Inst)})
		case xml.Directive:
			top.children = append(top.children, &node{kind: directiveNode, data: string(t)})
		}
	}
	if len(stack) != 1 {
		return nil, errors.New("unclosed element <" + stack[len(stack)-1].name + ">")
	}
	if root(doc) == nil {
		return nil, errors.New("no root element")
	}
	return doc, nil
}

// root returns the first element child of a document node.
func root(doc *node) *node {
	for _, c := range doc.children {
		if c.kind == elementNode {
			return c
		}
	}
	return nil
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;",
	)
)

// writeXML serializes n. A document node writes only its children.
func writeXML(w *bytes.Buffer, n *node) {
	switch n.kind {
	case textNode:
		textEscaper.WriteString(w, n.data)
	case commentNode:
		w.WriteString("<!--")
		w.WriteString(n.data)
		w.WriteString("-->")
	case procInstNode:
		w.WriteString("<?")
		w.WriteString(n.name)
		if n.data != "" {
			w.WriteByte(' ')
			w.WriteString(n.data)
		}
		w.WriteString("?>")
	case directiveNode:
		w.WriteString("<!")
		w.WriteString(n.data)
		w.WriteByte('>')
	case elementNode:
		if n.name == "" {
			for _, c := range n.children {
				writeXML(w, c)
			}
			return
		}
		w.WriteByte('<')
		w.WriteString(n.name)
		for _, a := range n.attrs {
			w.WriteByte(' ')
			w.WriteString(qualified(a.Name))
			w.WriteString(`="`)
			attrEscaper.WriteString(w, a.Value)
			w.WriteByte('"')
		}
		if len(n.children) == 0 {
			w.WriteString("/>")
			return
		}
		w.WriteByte('>')
		for _, c := range n.children {
			writeXML(w, c)
		}
		w.WriteString("</")
		w.WriteString(n.name)
		w.WriteByte('>')
	}
}

func marshalNode(n *node) []byte {
	var buf bytes.Buffer
	writeXML(&buf, n)
	return buf.Bytes()
}
