package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richText  = bluemonday.UGCPolicy()
	plainText = bluemonday.StrictPolicy()
)

// Sanitize keeps safe formatting markup, used for award descriptions.
func Sanitize(input string) string {
	return strings.TrimSpace(richText.Sanitize(input))
}

// SanitizeText strips all markup, used for names that end up in notification text.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(input)))
}
