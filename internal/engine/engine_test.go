package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docfill/internal/docmodel"
)

func para(texts ...string) *docmodel.Paragraph {
	p := &docmodel.Paragraph{}
	for _, t := range texts {
		p.Fragments = append(p.Fragments, &docmodel.Fragment{Text: t})
	}
	return p
}

func texts(p *docmodel.Paragraph) []string {
	out := make([]string, 0, len(p.Fragments))
	for _, f := range p.Fragments {
		out = append(out, f.Text)
	}
	return out
}

func world() Mapping {
	return Mapping{"{{name}}": "World"}
}

func TestReconstruct_MergesSplitToken(t *testing.T) {
	p := para("Hello ", "{{", "na", "me", "}}", "!")
	p.Fragments[0].Style.Bold = true
	p.Fragments[1].Style.Italic = true

	Reconstruct(p, world())

	assert.Equal(t, []string{"Hello ", "{{name}}", "!"}, texts(p))
	assert.True(t, p.Fragments[0].Style.Bold)
	assert.True(t, p.Fragments[1].Style.Italic, "merged fragment keeps the left style")
}

func TestReconstruct_MergesSplitMarkers(t *testing.T) {
	p := para("a {", "{x", "}", "} b")
	Reconstruct(p, Mapping{})
	assert.Equal(t, "a {{x}} b", p.Text())
	assert.Len(t, p.Fragments, 1)
}

func TestReconstruct_LeavesPlainFormattingAlone(t *testing.T) {
	p := para("plain ", "bold ", "italic")
	Reconstruct(p, world())
	assert.Equal(t, []string{"plain ", "bold ", "italic"}, texts(p))
}

func TestReconstruct_KeyStraddlingBoundary(t *testing.T) {
	m := Mapping{"%date%": "today"}
	p := para("on %da", "te% at")
	Reconstruct(p, m)
	assert.Equal(t, []string{"on %date% at"}, texts(p))
}

func TestReconstruct_PrunesEmptyFragments(t *testing.T) {
	p := para("", "a", "", "b")
	Reconstruct(p, Mapping{})
	assert.Equal(t, []string{"a", "b"}, texts(p))
}

func TestReconstruct_Idempotent(t *testing.T) {
	cases := [][]string{
		{"Hello ", "{{", "na", "me", "}}", "!"},
		{"x", "a", "{{b}}", "c"},
		{"{", "{", "a", "}", "}"},
		{"{{", "", "x}}", "y"},
		{"{{a}} {{", "b", "}} c"},
		{"}}", "{{"},
		{"{{{{", "x", "}}"},
		{"no tokens", " here"},
	}
	m := Mapping{"{{a}}": "1", "{{b}}": "2", "{{x}}": "3"}
	for _, c := range cases {
		once := para(c...)
		Reconstruct(once, m)
		twice := para(texts(once)...)
		Reconstruct(twice, m)
		assert.Equal(t, texts(once), texts(twice), "input %q", c)
	}
}

func TestResolve_SingleFragment(t *testing.T) {
	e := New(nil)
	p := para("Hello {{name}}!")

	res := e.Resolve(p, world())

	assert.Equal(t, "Hello World!", p.Text())
	assert.Equal(t, 1, res.Replaced)
	assert.Empty(t, res.Unknown)
}

func TestResolve_SeveralKeysInOneFragment(t *testing.T) {
	e := New(nil)
	p := para("{{a}}-{{b}}-{{a}}")
	res := e.Resolve(p, Mapping{"{{a}}": "1", "{{b}}": "2"})
	assert.Equal(t, "1-2-1", p.Text())
	assert.Equal(t, 3, res.Replaced)
}

func TestResolve_SplitTokenWithoutReconstruct(t *testing.T) {
	e := New(nil)
	p := para("Hello ", "{{", "na", "me", "}}", "!")
	p.Fragments[1].Style.Bold = true

	res := e.Resolve(p, world())

	assert.Equal(t, "Hello World!", p.Text())
	assert.Equal(t, 1, res.Replaced)
	require.Len(t, p.Fragments, 3)
	assert.Equal(t, "World", p.Fragments[1].Text)
	assert.True(t, p.Fragments[1].Style.Bold, "value takes the opener's style")
}

func TestResolve_SplitTokenTrimsName(t *testing.T) {
	e := New(nil)
	p := para("{{", " name ", "}}")
	e.Resolve(p, world())
	assert.Equal(t, "World", p.Text())
}

func TestProcessParagraph_SplitToken(t *testing.T) {
	e := New(nil)
	p := para("Hello ", "{{", "na", "me", "}}", "!")
	e.ProcessParagraph(p, world())
	assert.Equal(t, "Hello World!", p.Text())
}

func TestResolve_UnknownTokenPreserved(t *testing.T) {
	e := New(nil)
	p := para("{{unknown}}")

	res := e.Resolve(p, world())

	assert.Equal(t, "{{unknown}}", p.Text())
	assert.Equal(t, []string{"{{unknown}}"}, res.Unknown)
	assert.Zero(t, res.Replaced)
}

func TestResolve_UnknownSplitTokenStaysVisible(t *testing.T) {
	e := New(nil)
	p := para("a ", "{{", "other", "}}", " b")
	res := e.Resolve(p, world())
	assert.Equal(t, "a {{other}} b", p.Text())
	assert.Equal(t, []string{"{{other}}"}, res.Unknown)
}

func TestResolve_EmptyMappingIsNoop(t *testing.T) {
	e := New(nil)
	inputs := [][]string{
		{"Hello {{name}}!"},
		{"Hello ", "{{", "na", "me", "}}", "!"},
		{"{{", "orphan"},
		{"plain"},
	}
	for _, in := range inputs {
		p := para(in...)
		before := p.Text()
		e.Resolve(p, Mapping{})
		assert.Equal(t, before, p.Text())
	}
}

func TestResolve_MalformedSplitTokenDoesNotPanic(t *testing.T) {
	e := New(nil)
	p := para("{{", "orphan", " {{name}}")

	var res Result
	require.NotPanics(t, func() { res = e.Resolve(p, world()) })

	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.Replaced)
	assert.Equal(t, "{{orphan World", p.Text())
}

func TestResolve_OrphanOpenerWithoutKeysUntouched(t *testing.T) {
	e := New(nil)
	p := para("{{", "orphan")

	res := e.Resolve(p, world())

	assert.Equal(t, []string{"{{", "orphan"}, texts(p))
	assert.Zero(t, res.Malformed)
}

func TestResolve_SplitTokenOfOtherNameKeepsFragments(t *testing.T) {
	e := New(nil)
	p := para("{{", "x", "}}")
	p.Fragments[1].Style.Bold = true

	res := e.Resolve(p, Mapping{"{{y}}": "1"})

	assert.Equal(t, []string{"{{", "x", "}}"}, texts(p))
	assert.True(t, p.Fragments[1].Style.Bold)
	assert.Equal(t, []string{"{{x}}"}, res.Unknown)
	assert.Zero(t, res.Replaced)
}

func TestResolve_ClosingFragmentKeepsTrailingText(t *testing.T) {
	e := New(nil)
	p := para("Dear ", "{{", "name", "}} and friends")
	p.Fragments[3].Style.Italic = true

	res := e.Resolve(p, world())

	assert.Equal(t, 1, res.Replaced)
	assert.Equal(t, "Dear World and friends", p.Text())
	require.Len(t, p.Fragments, 3)
	assert.Equal(t, " and friends", p.Fragments[2].Text)
	assert.True(t, p.Fragments[2].Style.Italic, "trailing text keeps the closer's style")
}

func TestResolve_DoubleOpenerRestartsScan(t *testing.T) {
	e := New(nil)
	p := para("{{", "stray", "{{", "name", "}}")

	res := e.Resolve(p, world())

	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.Replaced)
	assert.Equal(t, "{{strayWorld", p.Text())
}

func TestResolve_NoFragments(t *testing.T) {
	e := New(nil)
	p := &docmodel.Paragraph{}
	assert.Equal(t, Result{}, e.Resolve(p, world()))
}

func TestResolve_ParagraphWithoutKeysUntouched(t *testing.T) {
	e := New(nil)
	p := para("plain", " text")
	res := e.Resolve(p, world())
	assert.Equal(t, []string{"plain", " text"}, texts(p))
	assert.Equal(t, Result{}, res)
}

func cell(blocks ...docmodel.Block) *docmodel.Cell {
	return &docmodel.Cell{Blocks: blocks}
}

func table(cells ...*docmodel.Cell) *docmodel.Table {
	return &docmodel.Table{Rows: []*docmodel.Row{{Cells: cells}}}
}

func TestProcessDocument_CoversBodyTablesAndSections(t *testing.T) {
	e := New(nil)
	body := para("Dear ", "{{", "name", "}}")
	inCell := para("cell {{name}}")
	nested := para("nested {{", "name}}")
	footer := para("footer {{name}}")
	header := para("header {{name}}")
	first := para("first {{name}}")
	hidden := para("first-not-shown {{name}}")

	doc := &docmodel.Document{
		Body: []docmodel.Block{
			body,
			table(cell(inCell), cell(table(cell(nested)))),
		},
		Sections: []*docmodel.Section{
			{
				TitlePage:   true,
				FirstHeader: &docmodel.HeaderFooter{Blocks: []docmodel.Block{first}},
				Header:      &docmodel.HeaderFooter{Blocks: []docmodel.Block{header}},
				Footer:      &docmodel.HeaderFooter{Blocks: []docmodel.Block{footer}},
			},
			{
				FirstHeader: &docmodel.HeaderFooter{Blocks: []docmodel.Block{hidden}},
			},
		},
	}

	res := e.ProcessDocument(doc, world())

	assert.Equal(t, "Dear World", body.Text())
	assert.Equal(t, "cell World", inCell.Text())
	assert.Equal(t, "nested World", nested.Text())
	assert.Equal(t, "header World", header.Text())
	assert.Equal(t, "first World", first.Text())
	assert.Equal(t, "footer World", footer.Text())
	assert.Equal(t, "first-not-shown {{name}}", hidden.Text())
	assert.Equal(t, 6, res.Replaced)
}

func TestProcessDocument_MalformedParagraphDoesNotStopWalk(t *testing.T) {
	e := New(nil)
	bad := para("{{", "orphan")
	good := para("{{name}}")
	doc := &docmodel.Document{Body: []docmodel.Block{bad, good}}

	res := e.ProcessDocument(doc, world())

	assert.Equal(t, "World", good.Text())
	assert.Equal(t, "{{orphan", bad.Text())
	assert.Equal(t, 1, res.Replaced)
}

func TestProcessDocument_SharedHeaderProcessedOnce(t *testing.T) {
	e := New(nil)
	header := para("h {{a}}")
	shared := &docmodel.HeaderFooter{Blocks: []docmodel.Block{header}}
	doc := &docmodel.Document{
		Sections: []*docmodel.Section{{Header: shared}, {Header: shared}, {Header: shared}},
	}

	res := e.ProcessDocument(doc, Mapping{"{{a}}": "[{{a}}]"})

	assert.Equal(t, "h [{{a}}]", header.Text())
	assert.Equal(t, 1, res.Replaced)
}

func TestProcessDocument_ReportsTokensInUneditableContent(t *testing.T) {
	e := New(nil)
	p := para("see ")
	p.Inert = []string{"{{name}} site", "plain link"}
	doc := &docmodel.Document{Body: []docmodel.Block{p}}

	res := e.ProcessDocument(doc, world())

	assert.Equal(t, []string{"{{name}}"}, res.Unknown)
	assert.Equal(t, "see ", p.Text())
}

func TestProcessDocument_ReportsUnknownOnce(t *testing.T) {
	e := New(nil)
	doc := &docmodel.Document{Body: []docmodel.Block{
		para("{{missing}}"), para("{{missing}} {{name}}"),
	}}
	res := e.ProcessDocument(doc, world())
	assert.Equal(t, []string{"{{missing}}"}, res.Unknown)
}

func TestReplaceTable_OutOfRange(t *testing.T) {
	e := New(nil)
	t1, t2, t3 := table(cell(para("1"))), table(cell(para("2"))), table(cell(para("3")))
	doc := &docmodel.Document{Body: []docmodel.Block{t1, para("x"), t2, t3}}

	err := e.ReplaceTable(doc, 5, table(cell(para("new"))))

	assert.ErrorIs(t, err, ErrTableIndexOutOfRange)
	assert.Equal(t, []docmodel.Block{t1, doc.Body[1], t2, t3}, doc.Body)
	assert.Same(t, t3, doc.Body[3])
}

func TestReplaceTable_SplicesInPlace(t *testing.T) {
	e := New(nil)
	t1, t2 := table(cell(para("1"))), table(cell(para("2")))
	doc := &docmodel.Document{Body: []docmodel.Block{para("x"), t1, para("y"), t2}}
	repl := table(cell(para("{{name}}")))

	require.NoError(t, e.ReplaceTable(doc, 1, repl))
	assert.Same(t, repl, doc.Body[3])

	e.ProcessDocument(doc, world())
	assert.Equal(t, "World", repl.Text())
}
