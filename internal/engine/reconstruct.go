package engine

import (
	"strings"

	"github.com/dgallion1/docfill/internal/docmodel"
)

// Reconstruct merges adjacent fragments that together carry one token, so
// that every complete token ends up inside a single fragment. The left
// fragment keeps its style. Empty fragments are pruned at the end.
//
// Merging only happens on token evidence at the boundary: an opening marker
// still open at the end of the left fragment, a marker split across the two
// fragments, or a mapping key straddling them. Formatting boundaries
// elsewhere in the paragraph are left alone. Running it twice gives the same
// result as running it once.
func Reconstruct(p *docmodel.Paragraph, m Mapping) {
	p.Prune()
	i := 0
	for i < len(p.Fragments)-1 {
		cur, next := p.Fragments[i], p.Fragments[i+1]
		if !shouldMerge(cur.Text, next.Text, m) {
			i++
			continue
		}
		cur.Text += next.Text
		next.Text = ""
		_ = p.RemoveAt(i + 1)
		// The left neighbour's pair changed; look at it again.
		if i > 0 {
			i--
		}
	}
	p.Prune()
}

func shouldMerge(cur, next string, m Mapping) bool {
	if hasOpenToken(cur) {
		return true
	}
	if strings.HasSuffix(cur, "{") && strings.HasPrefix(next, "{") {
		return true
	}
	if strings.HasSuffix(cur, "}") && strings.HasPrefix(next, "}") {
		return true
	}
	return keyStraddles(cur, next, m)
}

// hasOpenToken reports whether s has an opening marker with no closing
// marker after it.
func hasOpenToken(s string) bool {
	open := strings.LastIndex(s, openMarker)
	if open < 0 {
		return false
	}
	return !strings.Contains(s[open+len(openMarker):], closeMarker)
}

// keyStraddles reports whether some key occurs in cur+next across the
// boundary between the two.
func keyStraddles(cur, next string, m Mapping) bool {
	combined := cur + next
	for k := range m {
		if k == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(combined[from:], k)
			if idx < 0 {
				break
			}
			start := from + idx
			if start < len(cur) && start+len(k) > len(cur) {
				return true
			}
			from = start + 1
		}
	}
	return false
}
