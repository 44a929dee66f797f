package generate

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docfill/internal/engine"
)

var fieldRe = regexp.MustCompile(`\{([^{}]+)\}`)

// OutputName expands a profile output pattern. A {field} reference takes the
// form field of that name, else the token value, else nothing. {profile} is
// the profile name. The result is a safe file name ending in .docx.
func OutputName(pattern, profileName string, form map[string]string, m engine.Mapping) string {
	name := fieldRe.ReplaceAllStringFunc(pattern, func(ref string) string {
		field := strings.TrimSpace(ref[1 : len(ref)-1])
		if field == "profile" {
			return profileName
		}
		if v, ok := form[field]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return m[engine.Token(field)]
	})
	name = sanitize(strings.TrimSuffix(name, ".docx"))
	if name == "" {
		name = sanitize(profileName)
	}
	if name == "" {
		name = "document"
	}
	return name + ".docx"
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, s)
	return strings.Trim(s, " .")
}
