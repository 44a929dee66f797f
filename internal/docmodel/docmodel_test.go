package docmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(texts ...string) *Paragraph {
	p := &Paragraph{}
	for _, t := range texts {
		p.Fragments = append(p.Fragments, &Fragment{Text: t})
	}
	return p
}

func TestParagraph_Text(t *testing.T) {
	p := para("Hello ", "{{", "name", "}}", "!")
	assert.Equal(t, "Hello {{name}}!", p.Text())
}

func TestParagraph_PruneKeepsPinnedItems(t *testing.T) {
	p := para("a", "", "b", "")
	p.Fragments[1].Pinned = []any{"bookmark"}
	p.Fragments[3].Pinned = []any{"proofErr"}

	p.Prune()

	require.Len(t, p.Fragments, 2)
	assert.Equal(t, "ab", p.Text())
	assert.Equal(t, []any{"bookmark"}, p.Fragments[1].Pinned)
	assert.Equal(t, []any{"proofErr"}, p.Trailing)
}

func TestParagraph_RemoveAtOutOfRange(t *testing.T) {
	p := para("a")
	assert.ErrorIs(t, p.RemoveAt(1), ErrIndexOutOfRange)
	assert.ErrorIs(t, p.RemoveAt(-1), ErrIndexOutOfRange)
}

func TestDocument_ReplaceTableAt(t *testing.T) {
	t1, t2, t3 := &Table{}, &Table{}, &Table{}
	doc := &Document{Body: []Block{para("x"), t1, para("y"), t2, t3}}
	repl := &Table{Rows: []*Row{{Cells: []*Cell{{Blocks: []Block{para("new")}}}}}}

	require.NoError(t, doc.ReplaceTableAt(1, repl))
	assert.Same(t, repl, doc.Body[3])
	assert.Equal(t, []*Table{t1, repl, t3}, doc.Tables())

	assert.ErrorIs(t, doc.ReplaceTableAt(5, &Table{}), ErrIndexOutOfRange)
	assert.Equal(t, []*Table{t1, repl, t3}, doc.Tables())
}

func TestTable_Text(t *testing.T) {
	tbl := &Table{Rows: []*Row{
		{Cells: []*Cell{{Blocks: []Block{para("a")}}, {Blocks: []Block{para("b")}}}},
		{Cells: []*Cell{{Blocks: []Block{para("c")}}, {Blocks: []Block{para("d")}}}},
	}}
	assert.Equal(t, "a\tb\nc\td", tbl.Text())
}
