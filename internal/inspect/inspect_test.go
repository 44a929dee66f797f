package inspect

import (
	"bytes"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func template(t *testing.T) []byte {
	t.Helper()
	doc := docx.New().WithDefaultTheme()
	p := doc.AddParagraph()
	p.AddText("Отчёт № {{")
	p.AddText("report_number").Bold()
	p.AddText("}} от {{curr_date}}")
	doc.AddParagraph().AddText("Без полей")

	tbl := doc.AddTable(1, 2, 0, nil)
	tbl.TableRows[0].TableCells[0].AddParagraph().AddText("{{leader_full}}")
	tbl.TableRows[0].TableCells[1].AddParagraph().AddText("{{curr_date}} {{leader_short}}")

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestPlaceholders(t *testing.T) {
	data := template(t)
	got, err := Placeholders(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"{{curr_date}}",
		"{{leader_full}}",
		"{{leader_short}}",
		"{{report_number}}",
	}, got)
}

func TestPlaceholders_NotADocx(t *testing.T) {
	data := []byte("plain text")
	_, err := Placeholders(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}
