// Package sanitize cleans template text that picked up quoting and escaping in storage.
package sanitize

import (
	"regexp"
	"strings"
)

var indentAfterNewline = regexp.MustCompile(`\n[ \t\r\f\v]+`)

// Text applies, in order: strip one pair of enclosing double quotes, turn literal \n
// into newlines, drop indentation after each newline, turn \" into ", trim.
func Text(raw string) string {
	s := raw
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = indentAfterNewline.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.TrimSpace(s)
}
