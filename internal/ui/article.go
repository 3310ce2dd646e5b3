package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/wikiscroll/internal/wiki"
)

// formatArticle lays out article text for the reader: "== Heading ==" lines
// become styled headings and paragraphs are wrapped to width.
func formatArticle(a wiki.Article, width int) string {
	if width < 20 {
		width = 20
	}
	wrap := lipgloss.NewStyle().Width(width - 2)

	var b strings.Builder
	for _, line := range strings.Split(a.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			b.WriteString("\n")
		case strings.HasPrefix(trimmed, "==") && strings.HasSuffix(trimmed, "=="):
			heading := strings.TrimSpace(strings.Trim(trimmed, "="))
			b.WriteString("\n" + DebugHeaderStyle.Render(heading) + "\n")
		default:
			b.WriteString(wrap.Render(trimmed) + "\n")
		}
	}
	if a.Image != "" {
		b.WriteString("\n" + ImageBadge.Render("▣ "+a.Image) + "\n")
	}
	if a.URL != "" {
		b.WriteString("\n" + StatusBarText.Render(a.URL) + "\n")
	}
	return b.String()
}

// fallbackArticle is what the reader shows when the full text could not be
// fetched: the list entry itself.
func fallbackArticle(e entry) wiki.Article {
	return wiki.Article{
		ID:      e.ID.String(),
		Title:   e.Title,
		Content: e.Extract,
		Image:   e.Image,
		URL:     e.URL,
	}
}
