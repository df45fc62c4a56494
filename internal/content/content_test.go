package content

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello World"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Link", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Entities", "Fish &amp; chips", "Fish & chips"},
		{"Quotes", `"Hello" 'World'`, `"Hello" 'World'`},
		{"Emoji", "I am 🤖", "I am 🤖"},
		{"Escape sequence", "\x1b[2Jowned", "[2Jowned"},
		{"Escape entity", "&#27;[31mred", "[31mred"},
		{"Carriage return and bell", "a\rb\x07", "a\nb"},
		{"Newline and tab", "line one\n\tline two", "line one\n\tline two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPrintable(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"URL", "https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"Escape in URL", "https://cdn.example.com/\x1b]0;title\x07a.jpg", "https://cdn.example.com/]0;titlea.jpg"},
		{"C1 control", "a\u009bb", "ab"},
		{"No-break space", "a\u00a0b", "a b"},
		{"Bidi override", "a\u202eb", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Printable(tt.input); got != tt.expected {
				t.Errorf("Printable() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"Plain", "is the sofa still available?", "is the sofa still available?", nil},
		{"Trimmed", "  hi\n", "hi", nil},
		{"Empty", "", "", ErrEmptyMessage},
		{"Whitespace", " \t\n ", "", ErrEmptyMessage},
		{"At limit", strings.Repeat("я", MaxMessageLength), strings.Repeat("я", MaxMessageLength), nil},
		{"Too long", strings.Repeat("a", MaxMessageLength+1), "", ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMessage(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateMessage() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
