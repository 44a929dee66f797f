package api

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/docfill/internal/profile"
)

//go:embed home.md
var homeMarkdown string

const pageHead = `<!DOCTYPE html>
<html lang="ru"><head><meta charset="utf-8"><title>docfill</title>
<style>body{font-family:sans-serif;max-width:50em;margin:2em auto;padding:0 1em}code{background:#f3f3f3}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.3em .6em}</style>
</head><body>
`

const pageTail = "</body></html>\n"

// renderHome converts the embedded help text plus the profile list to HTML.
func renderHome(set *profile.Set) ([]byte, error) {
	var md strings.Builder
	md.WriteString(homeMarkdown)
	md.WriteString("\n## Profiles\n\n| Profile | Title | Report number column | Form fields |\n|---|---|---|---|\n")
	for _, p := range set.All() {
		fields := make([]string, 0, len(p.Form))
		for f := range p.Form {
			fields = append(fields, "`"+f+"`")
		}
		sort.Strings(fields)
		key := p.KeyColumn
		if key == "" {
			key = "none"
		}
		fmt.Fprintf(&md, "| `%s` | %s | %s | %s |\n", p.Name, p.Title, key, strings.Join(fields, ", "))
	}

	var buf bytes.Buffer
	buf.WriteString(pageHead)
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := gm.Convert([]byte(md.String()), &buf); err != nil {
		return nil, fmt.Errorf("render home page: %w", err)
	}
	buf.WriteString(pageTail)
	return buf.Bytes(), nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(s.home)
}
