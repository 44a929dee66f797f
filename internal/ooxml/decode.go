package ooxml

import (
	"strconv"
	"strings"

	"github.com/dgallion1/docfill/internal/docmodel"
)

// Native payloads attached to docmodel nodes. They carry everything the
// model does not, so encoding reproduces the original markup.

type paraNative struct {
	el  *node // w:p shell
	pPr *node
}

type runNative struct {
	el    *node // w:r shell
	rPr   *node
	style docmodel.Style // style as decoded; a mismatch means it was edited
}

type tableNative struct {
	el   *node // w:tbl shell
	head []*node
	tail []*node
}

type rowNative struct {
	el   *node
	head []*node
	tail []*node
}

type cellNative struct {
	el   *node
	tcPr *node
}

// textRunChildren are the run children that map onto fragment text. A run
// holding anything else is kept as an opaque inline item.
var textRunChildren = map[string]bool{
	"rPr":                   true,
	"t":                     true,
	"tab":                   true,
	"br":                    true,
	"cr":                    true,
	"lastRenderedPageBreak": true,
}

func isBlank(n *node) bool {
	return n.kind == textNode && strings.TrimSpace(n.data) == ""
}

// decodeBlocks converts the children of a body, header, footer or cell.
// Whitespace between elements is dropped.
func decodeBlocks(children []*node) []docmodel.Block {
	var out []docmodel.Block
	for _, c := range children {
		if isBlank(c) {
			continue
		}
		if c.kind != elementNode {
			out = append(out, &docmodel.Opaque{Native: c})
			continue
		}
		switch c.local() {
		case "p":
			out = append(out, decodeParagraph(c))
		case "tbl":
			out = append(out, decodeTable(c))
		default:
			out = append(out, &docmodel.Opaque{Native: c})
		}
	}
	return out
}

func decodeParagraph(n *node) *docmodel.Paragraph {
	nat := &paraNative{el: n.shell()}
	p := &docmodel.Paragraph{Native: nat}
	var pending []any
	for _, c := range n.children {
		if isBlank(c) {
			continue
		}
		if c.kind == elementNode && c.local() == "pPr" && nat.pPr == nil && len(p.Fragments) == 0 && len(pending) == 0 {
			nat.pPr = c
			continue
		}
		if c.kind == elementNode && c.local() == "r" && isTextRun(c) {
			f := decodeRun(c)
			f.Pinned = pending
			pending = nil
			p.Fragments = append(p.Fragments, f)
			continue
		}
		if t := visibleText(c); t != "" {
			p.Inert = append(p.Inert, t)
		}
		pending = append(pending, c)
	}
	p.Trailing = pending
	return p
}

// visibleText collects the w:t text under an inline item that stays opaque.
func visibleText(n *node) string {
	if n.kind != elementNode {
		return ""
	}
	if n.local() == "t" {
		return n.text()
	}
	var b strings.Builder
	for _, c := range n.elements() {
		b.WriteString(visibleText(c))
	}
	return b.String()
}

func isTextRun(r *node) bool {
	for _, c := range r.children {
		if isBlank(c) {
			continue
		}
		if c.kind != elementNode || !textRunChildren[c.local()] {
			return false
		}
		if c.local() == "br" {
			// Page and column breaks stay opaque.
			if t, ok := c.attr("type"); ok && t != "textWrapping" {
				return false
			}
		}
	}
	return true
}

func decodeRun(r *node) *docmodel.Fragment {
	nat := &runNative{el: r.shell(), rPr: r.child("rPr")}
	var b strings.Builder
	for _, c := range r.elements() {
		switch c.local() {
		case "t":
			b.WriteString(c.text())
		case "tab":
			b.WriteByte('\t')
		case "br", "cr":
			b.WriteByte('\n')
		}
	}
	nat.style = decodeStyle(nat.rPr)
	return &docmodel.Fragment{Text: b.String(), Style: nat.style, Native: nat}
}

// onOff reads a toggle property: present means on unless val says otherwise.
func onOff(n *node) bool {
	if n == nil {
		return false
	}
	v, ok := n.attr("val")
	if !ok {
		return true
	}
	switch strings.ToLower(v) {
	case "0", "false", "off":
		return false
	}
	return true
}

func decodeStyle(rPr *node) docmodel.Style {
	var s docmodel.Style
	if rPr == nil {
		return s
	}
	s.Bold = onOff(rPr.child("b"))
	s.Italic = onOff(rPr.child("i"))
	if u := rPr.child("u"); u != nil {
		s.Underline, _ = u.attr("val")
		if s.Underline == "" {
			s.Underline = "single"
		}
	}
	if f := rPr.child("rFonts"); f != nil {
		if v, ok := f.attr("ascii"); ok {
			s.Font = v
		} else {
			s.Font, _ = f.attr("hAnsi")
		}
	}
	if sz := rPr.child("sz"); sz != nil {
		v, _ := sz.attr("val")
		s.Size, _ = strconv.Atoi(v)
	}
	if c := rPr.child("color"); c != nil {
		s.Color, _ = c.attr("val")
	}
	return s
}

func decodeTable(n *node) *docmodel.Table {
	nat := &tableNative{el: n.shell()}
	t := &docmodel.Table{Native: nat}
	for _, c := range n.children {
		if isBlank(c) {
			continue
		}
		if c.kind == elementNode && c.local() == "tr" {
			t.Rows = append(t.Rows, decodeRow(c))
			continue
		}
		if len(t.Rows) == 0 {
			nat.head = append(nat.head, c)
		} else {
			nat.tail = append(nat.tail, c)
		}
	}
	return t
}

func decodeRow(n *node) *docmodel.Row {
	nat := &rowNative{el: n.shell()}
	r := &docmodel.Row{Native: nat}
	for _, c := range n.children {
		if isBlank(c) {
			continue
		}
		if c.kind == elementNode && c.local() == "tc" {
			r.Cells = append(r.Cells, decodeCell(c))
			continue
		}
		if len(r.Cells) == 0 {
			nat.head = append(nat.head, c)
		} else {
			nat.tail = append(nat.tail, c)
		}
	}
	return r
}

func decodeCell(n *node) *docmodel.Cell {
	nat := &cellNative{el: n.shell()}
	var rest []*node
	for _, c := range n.children {
		if c.kind == elementNode && c.local() == "tcPr" && nat.tcPr == nil {
			nat.tcPr = c
			continue
		}
		rest = append(rest, c)
	}
	return &docmodel.Cell{Blocks: decodeBlocks(rest), Native: nat}
}
