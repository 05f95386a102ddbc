package format

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips every tag from s, decodes the entities the sanitizer
// leaves behind and collapses whitespace.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}
