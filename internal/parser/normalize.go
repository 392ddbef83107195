package parser

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Only the entities the marketplace actually emits are decoded; anything
	// else passes through literally.
	entityReplacer = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"\u00a0", " ",
		`\u002F`, "/",
		`\u002f`, "/",
	)
)

// Clean strips markup tags from a raw fragment, decodes the fixed entity set,
// collapses whitespace runs to single spaces and trims the result. Cleaning
// already-clean text returns it unchanged.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := tagPattern.ReplaceAllString(raw, " ")
	text = entityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
