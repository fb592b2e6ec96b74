package websearch

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML removes markup from a fragment and decodes HTML entities,
// collapsing runs of whitespace to single spaces. Invalid markup degrades
// gracefully: the tokenizer emits whatever text it can recover.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	// Fast path: nothing to strip, just decode entities.
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.WriteString(tokenizer.Token().Data)
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
