// Package markup removes embedded HTML from recall text.
package markup

import (
	"regexp"
	"strings"
)

var (
	tagRE   = regexp.MustCompile(`<[^>]*>`)
	breakRE = regexp.MustCompile(`\r\n|\r|\n`)
	spaceRE = regexp.MustCompile(` {2,}`)
)

// Strip walks v and cleans every string it finds. Maps and slices are copied,
// other values are returned as they are.
func Strip(v any) any {
	switch tv := v.(type) {
	case string:
		return Text(tv)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, el := range tv {
			out[k] = Strip(el)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			out[i] = Strip(el)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(tv))
		for i, el := range tv {
			out[i] = Strip(el).(map[string]any)
		}
		return out
	default:
		return v
	}
}

// Text drops tags, turns line breaks into spaces, collapses runs of spaces
// and trims the result.
func Text(s string) string {
	s = tagRE.ReplaceAllString(s, "")
	s = breakRE.ReplaceAllString(s, " ")
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
