// Package engine substitutes {{name}} placeholders in a docmodel tree.
//
// A word processor splits a visually contiguous token over several runs
// whenever formatting changes mid-token, so every paragraph is first
// reconstructed (token pieces merged back together) and then resolved
// against the mapping. The engine is synchronous and holds no state between
// documents.
package engine

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/dgallion1/docfill/internal/docmodel"
)

// ErrTableIndexOutOfRange is returned by ReplaceTable when the document has
// fewer top-level tables than requested. It is not fatal for a request.
var ErrTableIndexOutOfRange = errors.New("table index out of range")

// Engine drives reconstruction and resolution over documents.
type Engine struct {
	log *slog.Logger
}

// New creates an engine. A nil logger discards output.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{log: log}
}

// ProcessDocument resolves every paragraph of doc: body paragraphs, body
// tables at any nesting depth, then per section the first-page header (when
// the section has a distinct first page), header, first-page footer, footer
// and the even-page variants. A header or footer shared by several sections
// is processed once.
func (e *Engine) ProcessDocument(doc *docmodel.Document, m Mapping) Result {
	var res Result
	e.walkBlocks(doc.Body, m, &res)
	// Sections without their own header or footer share the previous one.
	seen := make(map[*docmodel.HeaderFooter]bool)
	walk := func(part *docmodel.HeaderFooter) {
		if part == nil || seen[part] {
			return
		}
		seen[part] = true
		e.walkBlocks(part.Blocks, m, &res)
	}
	for _, s := range doc.Sections {
		if s.TitlePage {
			walk(s.FirstHeader)
		}
		walk(s.Header)
		walk(s.FirstFooter)
		walk(s.Footer)
		walk(s.EvenHeader)
		walk(s.EvenFooter)
	}
	res.Unknown = uniqueSorted(res.Unknown)
	if res.Malformed > 0 || len(res.Unknown) > 0 {
		e.log.Warn("document has unresolved placeholders",
			"malformed", res.Malformed,
			"unknown", res.Unknown,
		)
	}
	return res
}

// ProcessParagraph reconstructs p and resolves it. Tokens inside inline
// items that are never edited (p.Inert) are reported as unknown.
func (e *Engine) ProcessParagraph(p *docmodel.Paragraph, m Mapping) Result {
	Reconstruct(p, m)
	res := e.Resolve(p, m)
	for _, text := range p.Inert {
		for _, tok := range tokenRe.FindAllString(text, -1) {
			e.log.Debug("token in uneditable content", "token", tok)
			res.Unknown = append(res.Unknown, tok)
		}
	}
	return res
}

// ReplaceTable swaps the top-level table at index for t. An index past the
// last table is logged and leaves the document untouched.
func (e *Engine) ReplaceTable(doc *docmodel.Document, index int, t *docmodel.Table) error {
	if err := doc.ReplaceTableAt(index, t); err != nil {
		e.log.Warn("table not found", "index", index, "tables", len(doc.Tables()))
		return ErrTableIndexOutOfRange
	}
	return nil
}

// walkBlocks visits the paragraphs of blocks first, then their tables.
func (e *Engine) walkBlocks(blocks []docmodel.Block, m Mapping, res *Result) {
	for _, b := range blocks {
		if p, ok := b.(*docmodel.Paragraph); ok {
			res.Add(e.ProcessParagraph(p, m))
		}
	}
	for _, b := range blocks {
		if t, ok := b.(*docmodel.Table); ok {
			e.walkTable(t, m, res)
		}
	}
}

func (e *Engine) walkTable(t *docmodel.Table, m Mapping, res *Result) {
	for _, row := range t.Rows {
		for _, cell := range row.Cells {
			e.walkBlocks(cell.Blocks, m, res)
		}
	}
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
