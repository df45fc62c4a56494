package content

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MaxMessageLength = 4000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")

	policy = bluemonday.StrictPolicy()
)

// Sanitize strips every HTML element from the input and returns plain
// text suitable for a terminal. Script and style contents are dropped,
// and so are control characters, including ones spelled as entities.
func Sanitize(input string) string {
	return Printable(html.UnescapeString(policy.Sanitize(input)))
}

// Printable drops control and other non-printable runes so text cannot
// drive the terminal. Newlines and tabs survive; a carriage return
// becomes a newline and other spaces become plain spaces.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsPrint(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, s)
}

// ValidateMessage trims surrounding whitespace and checks that a chat
// message is not empty and fits the length limit.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrMessageTooLong, n, MaxMessageLength)
	}
	return text, nil
}
