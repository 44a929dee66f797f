// Package inspect lists the placeholder tokens a template exposes, read
// through go-docx. It only reads the main document body.
package inspect

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/fumiama/go-docx"
)

var tokenRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// Placeholders returns the distinct tokens visible in the body text,
// sorted. Run text is merged per paragraph, so split tokens are found too.
func Placeholders(r io.ReaderAt, size int64) ([]string, error) {
	doc, err := docx.Parse(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}
	seen := make(map[string]struct{})
	collect := func(text string) {
		for _, tok := range tokenRe.FindAllString(text, -1) {
			seen[tok] = struct{}{}
		}
	}
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			collect(paragraphText(v))
		case *docx.Table:
			tableText(v, collect)
		}
	}

	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out, nil
}

func tableText(t *docx.Table, collect func(string)) {
	for _, row := range t.TableRows {
		for _, cell := range row.TableCells {
			for _, p := range cell.Paragraphs {
				collect(paragraphText(p))
			}
			for _, nested := range cell.Tables {
				tableText(nested, collect)
			}
		}
	}
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			runText(&buf, c)
		case *docx.Hyperlink:
			runText(&buf, &c.Run)
		}
	}
	return buf.String()
}

func runText(buf *strings.Builder, run *docx.Run) {
	for _, rc := range run.Children {
		if t, ok := rc.(*docx.Text); ok {
			buf.WriteString(t.Text)
		}
	}
}
