// Package derive computes display strings (conversation titles and
// sidebar previews) from message content. All functions are pure and
// idempotent: applying them to their own output returns it unchanged.
package derive

import "strings"

const (
	// TitleLimit and PreviewLimit are rune budgets for the derived
	// strings, including the ellipsis appended on truncation.
	TitleLimit   = 30
	PreviewLimit = 48

	// DefaultTitle labels conversations whose first message yields no
	// usable text.
	DefaultTitle = "New Chat"

	ellipsis = "…"

	trailingPunct = "?!.,;:"
)

// Title derives a conversation title from the first user message.
func Title(content string) string {
	return clip(content, TitleLimit, DefaultTitle)
}

// Preview derives a one-line preview from the latest message.
func Preview(content string) string {
	return clip(content, PreviewLimit, "")
}

func clip(content string, limit int, fallback string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimRight(s, trailingPunct)
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	head := strings.TrimSpace(string(runes[:limit-1]))
	return head + ellipsis
}
