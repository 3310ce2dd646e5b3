// Package wiki fetches article pages from the MediaWiki action API.
//
// Client implements feed.Gateway: each Fetch runs one search-generator query
// for a category/subcategory pair and returns the matching pages together
// with the search offset to continue from.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/wikiscroll/internal/catalog"
	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/otel"
)

// ErrNotFound is returned by Article when the title does not exist.
var ErrNotFound = errors.New("wiki: article not found")

const (
	// relatedOffset is the search offset past which the query is widened
	// with "related" to keep long scrolls interesting.
	relatedOffset = 100

	// maxFilteredPages bounds how many consecutive pages an images-only
	// fetch will read when filtering leaves a page empty.
	maxFilteredPages = 3

	maxResponseBytes = 8 << 20
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	Endpoint          string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	PageSize          int
	Events            *otel.Logger
}

// Client talks to one MediaWiki endpoint. Safe for concurrent use.
type Client struct {
	endpoint  string
	userAgent string
	pageSize  int
	client    *http.Client
	limiter   *rate.Limiter
	backoffs  []time.Duration
	events    *otel.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://en.wikipedia.org/w/api.php"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wikiscroll/0.3"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	return &Client{
		endpoint:  opts.Endpoint,
		userAgent: opts.UserAgent,
		pageSize:  opts.PageSize,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		backoffs:  []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		events:    opts.Events,
	}
}

// SetRate changes the request rate limit. Used when the config is reloaded.
func (c *Client) SetRate(requestsPerSecond float64) {
	if requestsPerSecond <= 0 {
		return
	}
	c.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Rate returns the current request rate limit.
func (c *Client) Rate() float64 {
	return float64(c.limiter.Limit())
}

// queryResponse is the subset of an action=query response we read.
type queryResponse struct {
	Continue struct {
		GsrOffset offset `json:"gsroffset"`
	} `json:"continue"`
	Query struct {
		Pages map[string]page `json:"pages"`
	} `json:"query"`
	Error *apiError `json:"error"`
}

type page struct {
	PageID   int64   `json:"pageid"`
	Title    string  `json:"title"`
	Index    int     `json:"index"`
	Extract  string  `json:"extract"`
	FullURL  string  `json:"fullurl"`
	Missing  *string `json:"missing"`
	Original *image  `json:"original"`
	Thumb    *image  `json:"thumbnail"`
}

type image struct {
	Source string `json:"source"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// offset accepts gsroffset as either a JSON number or a string.
type offset string

func (o *offset) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*o = offset(s)
	return nil
}

// SearchTerm returns the search string for key at the given continuation
// token.
func SearchTerm(key feed.StreamKey, token string) string {
	term := key.Category
	if key.Subcategory != "" && key.Subcategory != catalog.General {
		term = key.Category + " " + key.Subcategory
	}
	if n, err := strconv.Atoi(token); err == nil && n > relatedOffset {
		term += " related"
	}
	return term
}

// Fetch returns one page of search results for key starting at token.
// With ImagesOnly set, pages without an image are dropped; if that empties
// a page that has a successor, up to maxFilteredPages pages are read.
func (c *Client) Fetch(ctx context.Context, key feed.StreamKey, token string) (feed.Batch, error) {
	for attempt := 0; ; attempt++ {
		batch, err := c.fetchPage(ctx, key, token)
		if err != nil {
			return feed.Batch{}, err
		}
		if len(batch.Items) > 0 || !batch.HasNext || !key.ImagesOnly || attempt+1 >= maxFilteredPages {
			return batch, nil
		}
		token = batch.Next
	}
}

func (c *Client) fetchPage(ctx context.Context, key feed.StreamKey, token string) (feed.Batch, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("generator", "search")
	params.Set("gsrsearch", SearchTerm(key, token))
	params.Set("gsrlimit", strconv.Itoa(c.pageSize))
	params.Set("gsrnamespace", "0")
	params.Set("prop", "extracts|pageimages|info")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("exlimit", "max")
	params.Set("piprop", "original|thumbnail")
	params.Set("pithumbsize", "400")
	params.Set("inprop", "url")
	params.Set("format", "json")
	if token == "" {
		params.Set("gsrsort", "random")
	} else {
		params.Set("gsrsort", "relevance")
		params.Set("gsroffset", token)
	}

	var resp queryResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return feed.Batch{}, err
	}
	if resp.Error != nil {
		return feed.Batch{}, fmt.Errorf("wiki: api error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	pages := make([]page, 0, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		pages = append(pages, p)
	}
	// The pages object is keyed by id; index carries the search rank.
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Index != pages[j].Index {
			return pages[i].Index < pages[j].Index
		}
		return pages[i].PageID < pages[j].PageID
	})

	batch := feed.Batch{Items: make([]feed.Item, 0, len(pages))}
	for _, p := range pages {
		img := p.image()
		if key.ImagesOnly && img == "" {
			continue
		}
		batch.Items = append(batch.Items, feed.Item{
			ID:      feed.StringID(strconv.FormatInt(p.PageID, 10)),
			Title:   orDefault(p.Title, "Untitled"),
			Extract: FirstSentence(p.Extract),
			Image:   img,
			URL:     p.FullURL,
		})
	}
	if next := string(resp.Continue.GsrOffset); next != "" {
		batch.Next = next
		batch.HasNext = true
	}
	return batch, nil
}

func (p page) image() string {
	if p.Original != nil && p.Original.Source != "" {
		return p.Original.Source
	}
	if p.Thumb != nil {
		return p.Thumb.Source
	}
	return ""
}

// Article is the full text of one page.
type Article struct {
	ID      string
	Title   string
	Content string
	Image   string
	URL     string
}

// Article fetches the full plain-text content of title.
func (c *Client) Article(ctx context.Context, title string) (Article, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "extracts|pageimages|info")
	params.Set("explaintext", "1")
	params.Set("exsectionformat", "wiki")
	params.Set("piprop", "original")
	params.Set("inprop", "url")
	params.Set("redirects", "1")
	params.Set("format", "json")

	start := time.Now()
	var resp queryResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return Article{}, err
	}
	if resp.Error != nil {
		return Article{}, fmt.Errorf("wiki: api error %s: %s", resp.Error.Code, resp.Error.Info)
	}
	for id, p := range resp.Query.Pages {
		if p.Missing != nil || strings.HasPrefix(id, "-") {
			continue
		}
		if c.events != nil {
			c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindArticleFetch, Comp: "wiki", Msg: p.Title, Dur: time.Since(start)})
		}
		return Article{
			ID:      id,
			Title:   orDefault(p.Title, "Untitled"),
			Content: orDefault(p.Extract, "No content available"),
			Image:   p.image(),
			URL:     p.FullURL,
		}, nil
	}
	return Article{}, fmt.Errorf("%w: %q", ErrNotFound, title)
}

// get performs a rate-limited GET and decodes the JSON body into out.
// HTTP 429 and 5xx are retried with backoff, honoring Retry-After.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	reqURL := c.endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(c.backoffs); attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wiki: rate limiter wait failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("wiki: failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("wiki: request cancelled: %w", ctx.Err())
			}
			return fmt.Errorf("wiki: request failed: %w", err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("wiki: failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("wiki: failed to parse response: %w", err)
			}
			return nil
		}

		lastErr = fmt.Errorf("wiki: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable {
			return lastErr
		}
		if attempt == len(c.backoffs) {
			break
		}

		delay := c.backoffs[attempt]
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				delay = min(time.Duration(secs)*time.Second, 30*time.Second)
			}
		}
		if c.events != nil {
			c.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindGatewayRetry, Comp: "wiki",
				Err: lastErr.Error(), Count: attempt + 1, Dur: delay})
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wiki: request cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("wiki: all retries exhausted: %w", lastErr)
}

// FirstSentence trims an extract to its first sentence, the way cards show it.
func FirstSentence(extract string) string {
	extract = strings.TrimSpace(extract)
	if extract == "" {
		return "No description available."
	}
	first, _, _ := strings.Cut(extract, ".")
	return strings.TrimSpace(first) + "."
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
