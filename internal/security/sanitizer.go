package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxNoteLength = 500
	MaxNameLength = 255
)

var (
	htmlPolicy      = bluemonday.StrictPolicy()
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
)

// SanitizeString trims, drops null bytes and cuts input to max runes.
func SanitizeString(input string, max int) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	if max > 0 && utf8.RuneCountInString(input) > max {
		input = string([]rune(input)[:max])
	}

	return input
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeNote cleans free text that ends up in ledger notes.
func SanitizeNote(input string) string {
	return SanitizeString(SanitizeHTML(input), MaxNoteLength)
}

// SanitizeDisplayName cleans a profile name coming from the chat platform.
func SanitizeDisplayName(input string) string {
	return SanitizeString(SanitizeHTML(input), MaxNameLength)
}

// ValidIdentifier checks user and item ids typed into commands.
func ValidIdentifier(id string) bool {
	return identifierRegex.MatchString(id)
}
