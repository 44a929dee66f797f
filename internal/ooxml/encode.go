package ooxml

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/dgallion1/docfill/internal/docmodel"
)

func encodeBlocks(blocks []docmodel.Block) []*node {
	out := make([]*node, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case *docmodel.Paragraph:
			out = append(out, encodeParagraph(v))
		case *docmodel.Table:
			out = append(out, encodeTable(v))
		case *docmodel.Opaque:
			if n, ok := v.Native.(*node); ok {
				out = append(out, n)
			}
		}
	}
	return out
}

func appendNative(dst []*node, items []any) []*node {
	for _, it := range items {
		if n, ok := it.(*node); ok {
			dst = append(dst, n)
		}
	}
	return dst
}

func encodeParagraph(p *docmodel.Paragraph) *node {
	var el *node
	nat, _ := p.Native.(*paraNative)
	if nat != nil {
		el = nat.el.shell()
		if nat.pPr != nil {
			el.children = append(el.children, nat.pPr)
		}
	} else {
		el = newElement("w:p")
	}
	for _, f := range p.Fragments {
		el.children = appendNative(el.children, f.Pinned)
		el.children = append(el.children, encodeRun(f))
	}
	el.children = appendNative(el.children, p.Trailing)
	return el
}

func encodeRun(f *docmodel.Fragment) *node {
	var el, rPr *node
	nat, _ := f.Native.(*runNative)
	switch {
	case nat == nil:
		el = newElement("w:r")
		rPr = applyStyle(nil, f.Style)
	case nat.style == f.Style:
		el = nat.el.shell()
		rPr = nat.rPr
	default:
		el = nat.el.shell()
		rPr = applyStyle(nat.rPr, f.Style)
	}
	if rPr != nil {
		el.children = append(el.children, rPr)
	}
	el.children = append(el.children, textNodes(f.Text)...)
	return el
}

// textNodes splits text into w:t, w:tab and w:br elements.
func textNodes(text string) []*node {
	var out []*node
	var seg strings.Builder
	flush := func() {
		if seg.Len() == 0 {
			return
		}
		s := seg.String()
		t := newElement("w:t")
		if strings.TrimSpace(s) != s {
			t.attrs = append(t.attrs, xml.Attr{Name: xml.Name{Space: "xml", Local: "space"}, Value: "preserve"})
		}
		t.children = []*node{{kind: textNode, data: s}}
		out = append(out, t)
		seg.Reset()
	}
	for _, r := range text {
		switch r {
		case '\t':
			flush()
			out = append(out, newElement("w:tab"))
		case '\n':
			flush()
			out = append(out, newElement("w:br"))
		case '\r':
		default:
			seg.WriteRune(r)
		}
	}
	flush()
	return out
}

// rPrOrder is the schema order of the run properties we may insert.
var rPrOrder = []string{
	"rStyle", "rFonts", "b", "bCs", "i", "iCs", "caps", "smallCaps", "strike",
	"dstrike", "outline", "shadow", "emboss", "imprint", "noProof", "snapToGrid",
	"vanish", "webHidden", "color", "spacing", "w", "kern", "position", "sz",
	"szCs", "highlight", "u", "effect", "bdr", "shd", "fitText", "vertAlign",
	"rtl", "cs", "em", "lang", "eastAsianLayout", "specVanish", "oMath",
}

func rPrRank(local string) int {
	for i, n := range rPrOrder {
		if n == local {
			return i
		}
	}
	return len(rPrOrder)
}

// applyStyle returns a copy of rPr rewritten to carry s. Properties the model
// does not know about are kept.
func applyStyle(rPr *node, s docmodel.Style) *node {
	out := newElement("w:rPr")
	var fonts *node
	if rPr != nil {
		out = rPr.shell()
		for _, c := range rPr.children {
			if c.kind != elementNode {
				continue
			}
			switch c.local() {
			case "b", "i", "u", "sz", "color":
				continue
			case "rFonts":
				fonts = c.shell()
				continue
			}
			out.children = append(out.children, c)
		}
	}
	if s.Font != "" {
		if fonts == nil {
			fonts = newElement("w:rFonts")
		}
		setAttr(fonts, "ascii", s.Font)
		setAttr(fonts, "hAnsi", s.Font)
	} else if fonts != nil {
		removeAttr(fonts, "ascii")
		removeAttr(fonts, "hAnsi")
		if len(fonts.attrs) == 0 {
			fonts = nil
		}
	}
	if fonts != nil {
		insertOrdered(out, fonts)
	}
	if s.Bold {
		insertOrdered(out, newElement("w:b"))
	}
	if s.Italic {
		insertOrdered(out, newElement("w:i"))
	}
	if s.Color != "" {
		insertOrdered(out, newElement("w:color", wAttr("val", s.Color)))
	}
	if s.Size > 0 {
		insertOrdered(out, newElement("w:sz", wAttr("val", strconv.Itoa(s.Size))))
	}
	if s.Underline != "" && s.Underline != "none" {
		insertOrdered(out, newElement("w:u", wAttr("val", s.Underline)))
	}
	if len(out.children) == 0 && rPr == nil {
		return nil
	}
	return out
}

func insertOrdered(parent, child *node) {
	rank := rPrRank(child.local())
	for i, c := range parent.children {
		if c.kind == elementNode && rPrRank(c.local()) > rank {
			parent.children = append(parent.children[:i], append([]*node{child}, parent.children[i:]...)...)
			return
		}
	}
	parent.children = append(parent.children, child)
}

func setAttr(n *node, local, value string) {
	for i := range n.attrs {
		if n.attrs[i].Name.Local == local {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, wAttr(local, value))
}

func removeAttr(n *node, local string) {
	out := n.attrs[:0]
	for _, a := range n.attrs {
		if a.Name.Local != local {
			out = append(out, a)
		}
	}
	n.attrs = out
}

func encodeTable(t *docmodel.Table) *node {
	nat, _ := t.Native.(*tableNative)
	var el *node
	if nat != nil {
		el = nat.el.shell()
		el.children = append(el.children, nat.head...)
	} else {
		el = newElement("w:tbl")
	}
	for _, r := range t.Rows {
		el.children = append(el.children, encodeRow(r))
	}
	if nat != nil {
		el.children = append(el.children, nat.tail...)
	}
	return el
}

func encodeRow(r *docmodel.Row) *node {
	nat, _ := r.Native.(*rowNative)
	var el *node
	if nat != nil {
		el = nat.el.shell()
		el.children = append(el.children, nat.head...)
	} else {
		el = newElement("w:tr")
	}
	for _, c := range r.Cells {
		el.children = append(el.children, encodeCell(c))
	}
	if nat != nil {
		el.children = append(el.children, nat.tail...)
	}
	return el
}

func encodeCell(c *docmodel.Cell) *node {
	nat, _ := c.Native.(*cellNative)
	var el *node
	if nat != nil {
		el = nat.el.shell()
		if nat.tcPr != nil {
			el.children = append(el.children, nat.tcPr)
		}
	} else {
		el = newElement("w:tc")
	}
	el.children = append(el.children, encodeBlocks(c.Blocks)...)
	if needsClosingParagraph(c.Blocks) {
		el.children = append(el.children, newElement("w:p"))
	}
	return el
}

// needsClosingParagraph reports whether a cell lacks the paragraph Word
// requires after its last table.
func needsClosingParagraph(blocks []docmodel.Block) bool {
	for i := len(blocks) - 1; i >= 0; i-- {
		switch blocks[i].(type) {
		case *docmodel.Paragraph:
			return false
		case *docmodel.Table:
			return true
		}
	}
	return true
}
