package telegram

import "strings"

// blockedTerms are matched as substrings against the lowercased message
// text. The list mirrors what moderation actually sees reported.
var blockedTerms = []string{
	"sex",
	"porn",
	"nude",
	"nudes",
	"xxx",
	"18+",
	"секс",
	"порно",
	"нюд",
	"эрот",
	"naked",
}

// ContainsBlockedContent reports whether the text trips the content filter.
func ContainsBlockedContent(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, term := range blockedTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
