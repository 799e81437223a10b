// File: internal/agent/htmltext.go
package agent

import (
	"strings"

	"golang.org/x/net/html"
)

// extractText reduces an HTML document to readable text: script and style
// subtrees are dropped entirely, remaining tags are removed, entities are
// decoded by the tokenizer, and whitespace is collapsed to single spaces.
func extractText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))

	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have.
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isSkippedTag(name string) bool {
	return name == "script" || name == "style"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
