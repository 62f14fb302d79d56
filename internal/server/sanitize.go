// Package server validates and neutralizes user-supplied text so relayed
// content is safe to render verbatim.
package server

import (
	"html"
	"strings"
	"unicode"
)

const (
	maxMessageLength  = 1000
	maxUsernameLength = 50
)

// sanitizeText trims, truncates to maxLength runes, strips control
// characters, and HTML-escapes the input. It returns the empty string when
// nothing renderable survives.
func sanitizeText(text string, maxLength int) string {
	text = strings.TrimSpace(text)

	if runes := []rune(text); maxLength > 0 && len(runes) > maxLength {
		text = string(runes[:maxLength])
	}

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)

	return html.EscapeString(strings.TrimSpace(text))
}

// sanitizeUsername applies the same treatment as sanitizeText with the
// shorter username length cap. Newlines never belong in a display name.
func sanitizeUsername(name string) string {
	name = sanitizeText(name, maxUsernameLength)
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\t", " ")
	return strings.TrimSpace(name)
}
