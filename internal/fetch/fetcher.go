// Package fetch serves Wikipedia's featured-content RSS feeds as a feed
// gateway, and routes stream keys between that gateway and search.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

const extractLen = 280

// FeaturedGateway fetches featured feeds. Each feed is a single page: the
// first fetch returns every item and no continuation.
type FeaturedGateway struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewFeaturedGateway creates a gateway for the api.php endpoint.
func NewFeaturedGateway(endpoint, userAgent string, timeout time.Duration) *FeaturedGateway {
	if userAgent == "" {
		userAgent = "wikiscroll/0.3"
	}
	return &FeaturedGateway{
		endpoint:  endpoint,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves the feed selected by key.Subcategory.
func (g *FeaturedGateway) Fetch(ctx context.Context, key feed.StreamKey, token string) (feed.Batch, error) {
	if ctx.Err() != nil {
		return feed.Batch{}, ctx.Err()
	}
	if token != "" {
		return feed.Batch{}, nil
	}
	src, ok := SourceFor(key.Subcategory)
	if !ok {
		return feed.Batch{}, fmt.Errorf("fetch: no featured feed for %q", key.Subcategory)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FeedURL(g.endpoint, src), nil)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("fetch: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("fetch: failed to fetch %s: %w", src.Feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feed.Batch{}, fmt.Errorf("fetch: HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("fetch: failed to parse feed: %w", err)
	}

	// Feeds list oldest first; the newest entry leads the stream.
	items := make([]feed.Item, 0, len(parsed.Items))
	for i := len(parsed.Items) - 1; i >= 0; i-- {
		item := convertFeedItem(parsed.Items[i], src)
		if key.ImagesOnly && item.Image == "" {
			continue
		}
		items = append(items, item)
	}
	return feed.Batch{Items: items}, nil
}

// convertFeedItem turns one feed entry into a stream item. The entry body is
// HTML; its text becomes the extract and its first image the picture.
func convertFeedItem(entry *gofeed.Item, src Source) feed.Item {
	body := entry.Description
	if body == "" {
		body = entry.Content
	}

	var text, image string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		text = strings.Join(strings.Fields(doc.Text()), " ")
		if s, ok := doc.Find("img").First().Attr("src"); ok {
			image = absoluteURL(s)
		}
	}
	if entry.Image != nil && image == "" {
		image = entry.Image.URL
	}

	title := entry.Title
	if title == "" {
		title = src.Name
	}
	return feed.Item{
		ID:      feed.StringID(src.Feed + ":" + generateID(entry)),
		Title:   title,
		Extract: truncate(text, extractLen),
		Image:   image,
		URL:     entry.Link,
	}
}

// generateID creates a deterministic ID for a feed entry.
// Uses the GUID if available, otherwise hashes the link.
func generateID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return hashString(entry.GUID)
	}
	if entry.Link != "" {
		return hashString(entry.Link)
	}

	key := entry.Title
	if entry.PublishedParsed != nil {
		key += entry.PublishedParsed.String()
	}
	return hashString(key)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

func absoluteURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
