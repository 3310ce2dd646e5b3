package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

// linesPerItem is the rendered height of one entry: title and extract.
const linesPerItem = 2

// entry is one article in the list plus its read state.
type entry struct {
	feed.Item
	Read bool
}

// visibleRows returns how many entries fit in height lines.
func visibleRows(height int) int {
	rows := height / linesPerItem
	if rows < 1 {
		rows = 1
	}
	return rows
}

// calcScrollOffset returns the index of the first visible entry such that
// the cursor stays on screen.
func calcScrollOffset(total, cursor, rows int) int {
	if total == 0 || cursor < 0 {
		return 0
	}
	if cursor >= total {
		cursor = total - 1
	}
	if cursor >= rows {
		return cursor - rows + 1
	}
	return 0
}

// lastVisible returns the index of the last entry on screen.
func lastVisible(total, cursor, height int) int {
	rows := visibleRows(height)
	last := calcScrollOffset(total, cursor, rows) + rows - 1
	if last > total-1 {
		last = total - 1
	}
	return last
}

// RenderStream renders the visible window of entries.
func RenderStream(entries []entry, cursor, width, height int) string {
	if len(entries) == 0 {
		return HelpStyle.Render("No articles yet.")
	}

	rows := visibleRows(height)
	offset := calcScrollOffset(len(entries), cursor, rows)

	var b strings.Builder
	for i := offset; i < len(entries) && i < offset+rows; i++ {
		b.WriteString(renderEntry(entries[i], i == cursor, width))
		b.WriteString("\n")
	}
	return b.String()
}

// renderEntry renders the title line and extract line of one entry.
func renderEntry(e entry, selected bool, width int) string {
	badge := "  "
	if e.Image != "" {
		badge = ImageBadge.Render("▣ ")
	}

	titleWidth := width - 4 - lipgloss.Width(badge)
	if titleWidth < 10 {
		titleWidth = 10
	}
	title := runewidth.Truncate(e.Title, titleWidth, "…")

	var titleStyle lipgloss.Style
	switch {
	case selected:
		titleStyle = SelectedItem
		if e.Read {
			titleStyle = titleStyle.Foreground(lipgloss.Color("250")).Bold(false)
		}
	case e.Read:
		titleStyle = ReadItem
	default:
		titleStyle = NormalItem
	}

	extractWidth := width - 6
	if extractWidth < 10 {
		extractWidth = 10
	}
	extract := runewidth.Truncate(e.Extract, extractWidth, "…")

	return badge + titleStyle.Render(title) + "\n" + ExtractStyle.Render(extract)
}

// RenderHeader renders the stream title line.
func RenderHeader(key feed.StreamKey, width int) string {
	label := key.Category
	if key.Subcategory != "" {
		label += " › " + key.Subcategory
	}
	if key.ImagesOnly {
		label += "  [images only]"
	}
	return HeaderStyle.Width(width).Render(runewidth.Truncate(label, max(width-2, 1), "…"))
}

// RenderFooter renders the line below the list: a spinner while loading,
// an end marker once the stream is exhausted.
func RenderFooter(loading, exhausted bool, spin string, width int) string {
	switch {
	case loading:
		return FooterStyle.Width(width).Render(spin + " Loading more articles...")
	case exhausted:
		return FooterStyle.Width(width).Render("No more articles in this category.")
	default:
		return FooterStyle.Width(width).Render("")
	}
}

// RenderStatusBar renders the bottom status bar with key hints and item count.
func RenderStatusBar(cursor, total int, width int, note string) string {
	position := fmt.Sprintf(" %d/%d ", min(cursor+1, total), total)
	if note != "" {
		position += " " + note + " "
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
		StatusBarKey.Render("Enter") + StatusBarText.Render(":read"),
		StatusBarKey.Render("c") + StatusBarText.Render(":category"),
		StatusBarKey.Render("i") + StatusBarText.Render(":images"),
		StatusBarKey.Render("r") + StatusBarText.Render(":reload"),
		StatusBarKey.Render("?") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(position) - lipgloss.Width(keyHints)
	if padding < 0 {
		padding = 0
	}

	bar := position + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(width).Render(bar)
}
