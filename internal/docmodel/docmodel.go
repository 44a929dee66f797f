// Package docmodel is the in-memory tree a template is loaded into: sections
// with their headers and footers, body blocks, tables, paragraphs and the
// styled text fragments a word processor splits paragraphs into.
//
// Every container owns its children; there are no parent pointers. The
// Native fields belong to the Document I/O layer and are never inspected
// here.
package docmodel

import (
	"errors"
	"strings"
)

// ErrIndexOutOfRange is returned by positional container operations.
var ErrIndexOutOfRange = errors.New("index out of range")

// Document is the root of a loaded template.
type Document struct {
	Body     []Block
	Sections []*Section
}

// Section carries the page-level parts of one document section.
// A nil part is not defined for the section.
type Section struct {
	TitlePage bool // distinct first page

	Header      *HeaderFooter
	FirstHeader *HeaderFooter
	EvenHeader  *HeaderFooter
	Footer      *HeaderFooter
	FirstFooter *HeaderFooter
	EvenFooter  *HeaderFooter
}

// HeaderFooter is the block content of a header or footer part.
type HeaderFooter struct {
	Blocks []Block
	Native any
}

// Block is a body-level element: *Paragraph, *Table or *Opaque.
type Block interface {
	isBlock()
}

// Opaque is block content that is kept for serialization but not traversed.
type Opaque struct {
	Native any
}

func (*Opaque) isBlock() {}

// Style is the subset of run formatting the engine carries around.
type Style struct {
	Bold      bool
	Italic    bool
	Underline string
	Font      string
	Size      int // half-points
	Color     string
}

// Fragment is one independently formatted piece of paragraph text.
type Fragment struct {
	Text  string
	Style Style

	// Pinned holds opaque inline items positioned right before this fragment.
	Pinned []any
	Native any
}

// Paragraph is an ordered list of fragments. Fragment boundaries carry no
// meaning of their own.
type Paragraph struct {
	Fragments []*Fragment

	// Trailing holds opaque inline items after the last fragment.
	Trailing []any
	// Inert holds the text of inline items that are kept but never edited,
	// such as hyperlinks and tracked insertions, one entry per item.
	Inert  []string
	Native any
}

func (*Paragraph) isBlock() {}

// Text returns the concatenated fragment text.
func (p *Paragraph) Text() string {
	var b strings.Builder
	for _, f := range p.Fragments {
		b.WriteString(f.Text)
	}
	return b.String()
}

// RemoveAt deletes fragment i. Pinned items move to the next fragment, or to
// Trailing when i was the last one.
func (p *Paragraph) RemoveAt(i int) error {
	if i < 0 || i >= len(p.Fragments) {
		return ErrIndexOutOfRange
	}
	if pinned := p.Fragments[i].Pinned; len(pinned) > 0 {
		if i+1 < len(p.Fragments) {
			next := p.Fragments[i+1]
			next.Pinned = append(append([]any{}, pinned...), next.Pinned...)
		} else {
			p.Trailing = append(append([]any{}, pinned...), p.Trailing...)
		}
	}
	p.Fragments = append(p.Fragments[:i], p.Fragments[i+1:]...)
	return nil
}

// Prune deletes every fragment whose text is empty.
func (p *Paragraph) Prune() {
	for i := len(p.Fragments) - 1; i >= 0; i-- {
		if p.Fragments[i].Text == "" {
			_ = p.RemoveAt(i)
		}
	}
}

// Table is an ordered list of rows.
type Table struct {
	Rows   []*Row
	Native any
}

func (*Table) isBlock() {}

// Row is an ordered list of cells.
type Row struct {
	Cells  []*Cell
	Native any
}

// Cell owns blocks, which may include nested tables.
type Cell struct {
	Blocks []Block
	Native any
}

// Text returns the table text, cells separated by tabs and rows by newlines.
func (t *Table) Text() string {
	var b strings.Builder
	for ri, row := range t.Rows {
		if ri > 0 {
			b.WriteByte('\n')
		}
		for ci, cell := range row.Cells {
			if ci > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(BlocksText(cell.Blocks))
		}
	}
	return b.String()
}

// BlocksText returns the visible text of blocks, one line per paragraph.
func BlocksText(blocks []Block) string {
	var parts []string
	for _, b := range blocks {
		switch v := b.(type) {
		case *Paragraph:
			parts = append(parts, v.Text())
		case *Table:
			parts = append(parts, v.Text())
		}
	}
	return strings.Join(parts, "\n")
}

// Tables returns the top-level body tables in document order.
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, b := range d.Body {
		if t, ok := b.(*Table); ok {
			out = append(out, t)
		}
	}
	return out
}

// Paragraphs returns the top-level body paragraphs in document order.
func (d *Document) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, b := range d.Body {
		if p, ok := b.(*Paragraph); ok {
			out = append(out, p)
		}
	}
	return out
}

// ReplaceTableAt swaps the top-level table at position index (counted among
// top-level tables only) for t, in the same structural position.
func (d *Document) ReplaceTableAt(index int, t *Table) error {
	if index < 0 {
		return ErrIndexOutOfRange
	}
	n := 0
	for i, b := range d.Body {
		if _, ok := b.(*Table); !ok {
			continue
		}
		if n == index {
			return ReplaceAt(d.Body, i, t)
		}
		n++
	}
	return ErrIndexOutOfRange
}

// ReplaceAt overwrites blocks[i] with b.
func ReplaceAt(blocks []Block, i int, b Block) error {
	if i < 0 || i >= len(blocks) {
		return ErrIndexOutOfRange
	}
	blocks[i] = b
	return nil
}
