package textproc

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// StripMarkup removes tags and decodes entities. Script and style bodies are
// dropped entirely.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

// CollapseWhitespace trims and folds every whitespace run into one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanText strips markup, keeps letters, digits and the punctuation that
// shows up in product codes, and collapses whitespace.
func CleanText(s string) string {
	s = StripMarkup(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '-', r == '.', r == '/', r == '#', r == '_':
			return r
		default:
			return ' '
		}
	}, s)
	return CollapseWhitespace(s)
}
