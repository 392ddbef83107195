package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/svanlent/seller-scraper/internal/models"
)

// sellerProfileAnchor matches the opening of the embedded seller object. The
// type discriminator plus the id/name fields pin down the right object; the
// tail cannot be bounded here because the object nests arbitrarily.
var sellerProfileAnchor = regexp.MustCompile(`\{"type"\s*:\s*"SellerProfile"\s*,\s*"id"\s*:\s*"[^"]*"\s*,\s*"name"\s*:`)

// escapedJSONReplacer undoes script-string escaping so the anchor can match
// objects serialized inside a quoted script payload.
var escapedJSONReplacer = strings.NewReplacer(
	`\"`, `"`,
	`\u002F`, "/",
	`\u002f`, "/",
	`\/`, "/",
)

// ExtractEmbedded locates and parses the seller object embedded in the page's
// script payload. It returns nil on any failure (no anchor, unbalanced braces,
// invalid JSON); every consumer has a markup fallback, so absence is never an
// error.
func ExtractEmbedded(page string) *models.EmbeddedSellerData {
	if data := extractEmbeddedAt(page); data != nil {
		return data
	}
	// The object may sit inside a quoted script string with escaped quotes.
	return extractEmbeddedAt(escapedJSONReplacer.Replace(page))
}

func extractEmbeddedAt(page string) *models.EmbeddedSellerData {
	loc := sellerProfileAnchor.FindStringIndex(page)
	if loc == nil {
		return nil
	}

	end, ok := scanObjectEnd(page, loc[0])
	if !ok {
		return nil
	}

	var data models.EmbeddedSellerData
	if err := json.Unmarshal([]byte(page[loc[0]:end]), &data); err != nil {
		return nil
	}
	return &data
}

// scanObjectEnd walks the text from the opening brace at start, tracking brace
// depth while skipping string literals, and returns the index one past the
// brace that closes the object. ok is false when the object never closes.
func scanObjectEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
