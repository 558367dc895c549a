package telegram

import (
	"strings"

	"NewsStream/internal/domain"
)

const (
	greetingText    = "Hello! Send /news to get the latest news item."
	noNewItemText   = "No new items yet. Try again later."
	unavailableText = "News is temporarily unavailable. Please try again later."
	unknownText     = "Unknown command. Send /news to get the latest news item."
)

// formatItem renders the delivery reply in Telegram's legacy Markdown.
// Title and summary are plain text and are escaped, never parsed.
func formatItem(item domain.Item) string {
	var b strings.Builder
	b.WriteString("Here are your news:\n")

	if title := strings.TrimSpace(item.Title); title != "" {
		b.WriteString("*")
		b.WriteString(escapeMarkdown(title))
		b.WriteString("*\n")
	}
	if summary := strings.TrimSpace(item.Summary); summary != "" {
		b.WriteString(escapeMarkdown(summary))
		b.WriteString("\n")
	}
	b.WriteString("[Open](")
	b.WriteString(escapeLinkTarget(item.Link))
	b.WriteString(")")

	if !item.PublishedAt.IsZero() {
		b.WriteString("\n_")
		b.WriteString(item.PublishedAt.UTC().Format("02 Jan 2006 15:04 MST"))
		b.WriteString("_")
	}
	return b.String()
}

// Legacy Markdown only treats these four characters as markup.
var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var linkEscaper = strings.NewReplacer(")", "%29", " ", "%20")

func escapeLinkTarget(link string) string {
	return linkEscaper.Replace(link)
}
