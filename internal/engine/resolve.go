package engine

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docfill/internal/docmodel"
)

var tokenRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// Result counts what a resolve pass did.
type Result struct {
	Replaced  int
	Malformed int
	Unknown   []string // tokens left in the text, in order of appearance
}

// Add folds o into r.
func (r *Result) Add(o Result) {
	r.Replaced += o.Replaced
	r.Malformed += o.Malformed
	r.Unknown = append(r.Unknown, o.Unknown...)
}

// Resolve substitutes mapping values for the tokens in p. Tokens wholly
// inside one fragment are replaced in place. A token whose markers are
// standalone fragments ("{{", name pieces, "}}") is collapsed into the
// opening fragment, which takes the value and keeps its style.
//
// A paragraph whose text names no mapping key is left exactly as it is.
// Tokens with no mapping entry are left visible. A split token that never
// closes is counted as malformed and its text is kept in the opening
// fragment.
func (e *Engine) Resolve(p *docmodel.Paragraph, m Mapping) (res Result) {
	if len(p.Fragments) == 0 {
		return res
	}

	text := p.Text()
	if !strings.Contains(text, openMarker) {
		return res
	}
	defer func() {
		res.Unknown = tokenRe.FindAllString(p.Text(), -1)
		for _, tok := range res.Unknown {
			e.log.Debug("unresolved token", "token", tok)
		}
	}()

	if !m.mentionsKey(text) {
		return res
	}

	res.Replaced += replaceInline(p, m)
	replaced, malformed := e.replaceSplit(p, m)
	res.Replaced += replaced
	res.Malformed += malformed
	p.Prune()
	return res
}

// replaceInline handles tokens that sit inside a single fragment.
func replaceInline(p *docmodel.Paragraph, m Mapping) int {
	n := 0
	keys := m.keys()
	for _, f := range p.Fragments {
		if !strings.Contains(f.Text, openMarker) || !strings.Contains(f.Text, closeMarker) {
			continue
		}
		for _, k := range keys {
			if k == "" || !strings.Contains(f.Text, k) {
				continue
			}
			n += strings.Count(f.Text, k)
			f.Text = strings.ReplaceAll(f.Text, k, m[k])
		}
	}
	return n
}

// replaceSplit handles tokens spread over several fragments with the
// markers as standalone fragments. The closing fragment may carry text after
// "}}", which stays in it. The scan never goes past the last fragment.
func (e *Engine) replaceSplit(p *docmodel.Paragraph, m Mapping) (replaced, malformed int) {
	frags := p.Fragments
	i := 0
	for i < len(frags) {
		if strings.TrimSpace(frags[i].Text) != openMarker {
			i++
			continue
		}
		target := frags[i]
		var name strings.Builder
		closed, restart := false, false
		j := i + 1
		for ; j < len(frags); j++ {
			t := strings.TrimSpace(frags[j].Text)
			if strings.HasPrefix(t, closeMarker) {
				closed = true
				break
			}
			if t == openMarker {
				restart = true
				break
			}
			name.WriteString(frags[j].Text)
			frags[j].Text = ""
		}

		if !closed {
			// Keep what was consumed visible next to the opener.
			target.Text += name.String()
			malformed++
			e.log.Warn("malformed split token", "token", target.Text)
			if restart {
				i = j
				continue
			}
			break
		}

		closer := frags[j]
		if value, ok := m.lookupName(name.String()); ok {
			target.Text = value
			closer.Text = strings.Replace(closer.Text, closeMarker, "", 1)
			replaced++
		} else {
			target.Text += name.String() + closer.Text
			closer.Text = ""
		}
		i = j + 1
	}
	return replaced, malformed
}
