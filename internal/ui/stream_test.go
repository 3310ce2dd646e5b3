package ui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/wiki"
)

// makeEntries creates n entries with distinct titles.
func makeEntries(n int) []entry {
	entries := make([]entry, n)
	for i := range entries {
		entries[i] = entry{Item: feed.Item{
			ID:      feed.IntID(int64(i)),
			Title:   fmt.Sprintf("Article %03d", i),
			Extract: "An extract.",
		}}
	}
	return entries
}

func TestCalcScrollOffset(t *testing.T) {
	tests := []struct {
		total, cursor, rows int
		want                int
	}{
		{0, 0, 10, 0},
		{5, 3, 10, 0},
		{50, 9, 10, 0},
		{50, 10, 10, 1},
		{50, 49, 10, 40},
		{50, 80, 10, 40}, // cursor past the end clamps
		{50, -1, 10, 0},
	}
	for _, tt := range tests {
		got := calcScrollOffset(tt.total, tt.cursor, tt.rows)
		if got != tt.want {
			t.Errorf("calcScrollOffset(%d, %d, %d) = %d, want %d", tt.total, tt.cursor, tt.rows, got, tt.want)
		}
	}
}

func TestLastVisible(t *testing.T) {
	// 20 lines hold 10 entries.
	if got := lastVisible(100, 0, 20); got != 9 {
		t.Errorf("lastVisible at top = %d, want 9", got)
	}
	if got := lastVisible(100, 30, 20); got != 30 {
		t.Errorf("lastVisible with cursor 30 = %d, want 30", got)
	}
	if got := lastVisible(4, 0, 20); got != 3 {
		t.Errorf("short list lastVisible = %d, want 3", got)
	}
}

func TestRenderStreamNoOverRender(t *testing.T) {
	entries := makeEntries(500)
	height := 30

	out := RenderStream(entries, 250, 80, height)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > height {
		t.Errorf("rendered %d lines, want <= %d", len(lines), height)
	}
}

func TestRenderStreamCursorVisible(t *testing.T) {
	entries := makeEntries(100)
	for _, cursor := range []int{0, 9, 10, 50, 99} {
		out := RenderStream(entries, cursor, 80, 20)
		if !strings.Contains(out, entries[cursor].Title) {
			t.Errorf("cursor=%d: selected title not in rendered output", cursor)
		}
	}
}

func TestRenderStreamEmpty(t *testing.T) {
	if out := RenderStream(nil, 0, 80, 20); !strings.Contains(out, "No articles") {
		t.Errorf("unexpected empty render %q", out)
	}
}

func TestRenderEntryTruncatesWideTitles(t *testing.T) {
	e := entry{Item: feed.Item{Title: strings.Repeat("長", 60), Extract: "x"}}
	out := renderEntry(e, false, 40)
	title := strings.Split(out, "\n")[0]
	if !strings.Contains(title, "…") {
		t.Errorf("wide title should be truncated: %q", title)
	}
}

func TestRenderHeader(t *testing.T) {
	out := RenderHeader(feed.StreamKey{Category: "Arts", Subcategory: "Music", ImagesOnly: true}, 80)
	if !strings.Contains(out, "Arts › Music") || !strings.Contains(out, "[images only]") {
		t.Errorf("header = %q", out)
	}
}

func TestRenderFooter(t *testing.T) {
	if out := RenderFooter(true, false, "*", 80); !strings.Contains(out, "Loading") {
		t.Errorf("loading footer = %q", out)
	}
	if out := RenderFooter(false, true, "*", 80); !strings.Contains(out, "No more articles") {
		t.Errorf("exhausted footer = %q", out)
	}
}

func TestFormatArticle(t *testing.T) {
	out := formatArticle(wiki.Article{
		Content: "Lead paragraph.\n\n=== Early life ===\nBorn somewhere.",
		URL:     "https://en.wikipedia.org/wiki/X",
	}, 80)
	if strings.Contains(out, "===") {
		t.Errorf("heading markers should be stripped:\n%s", out)
	}
	for _, want := range []string{"Lead paragraph.", "Early life", "Born somewhere.", "wiki/X"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted article missing %q:\n%s", want, out)
		}
	}
}
