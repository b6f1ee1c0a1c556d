package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips markup from user supplied free text and collapses whitespace. Entities
// escaped by the sanitizer are decoded again so the result is plain text, not HTML.
func PlainText(value string) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.Join(strings.Fields(cleaned), " ")
}

// PlainTextPtr applies PlainText to an optional value, preserving nil.
func PlainTextPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := PlainText(*value)
	return &cleaned
}
