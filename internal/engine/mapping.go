package engine

import (
	"regexp"
	"sort"
	"strings"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Mapping maps a delimited token ("{{name}}") to its replacement text.
type Mapping map[string]string

// Token returns the delimited form of name.
func Token(name string) string {
	return openMarker + name + closeMarker
}

// Set stores value under the delimited token for name.
func (m Mapping) Set(name, value string) {
	m[Token(name)] = value
}

// keys returns the mapping keys in a stable order so that substitution is
// deterministic when one value happens to contain another key.
func (m Mapping) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// containsAnyKey reports whether s contains any mapping key.
func (m Mapping) containsAnyKey(s string) bool {
	for k := range m {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

var paddedTokenRe = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// mentionsKey reports whether text holds a mapping key, counting a token
// with blanks around its name ("{{ name }}") as the key it names.
func (m Mapping) mentionsKey(text string) bool {
	if m.containsAnyKey(text) {
		return true
	}
	return m.containsAnyKey(paddedTokenRe.ReplaceAllString(text, "{{$1}}"))
}

// lookupName finds the key whose name (delimiters stripped) equals the
// trimmed name.
func (m Mapping) lookupName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, k := range m.keys() {
		bare := strings.ReplaceAll(strings.ReplaceAll(k, openMarker, ""), closeMarker, "")
		if bare == name {
			return m[k], true
		}
	}
	return "", false
}
