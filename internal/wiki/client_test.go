package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

const searchPage = `{
  "batchcomplete": "",
  "continue": {"gsroffset": 10, "continue": "gsroffset||"},
  "query": {"pages": {
    "300": {"pageid": 300, "ns": 0, "title": "Gamma", "index": 3, "extract": "Gamma is third. More text.", "fullurl": "https://en.wikipedia.org/wiki/Gamma"},
    "100": {"pageid": 100, "ns": 0, "title": "Alpha", "index": 1, "extract": "Alpha is first. More.", "fullurl": "https://en.wikipedia.org/wiki/Alpha",
            "original": {"source": "https://upload.wikimedia.org/alpha.jpg", "width": 800, "height": 600}},
    "200": {"pageid": 200, "ns": 0, "title": "Beta", "index": 2, "extract": "", "fullurl": "https://en.wikipedia.org/wiki/Beta",
            "thumbnail": {"source": "https://upload.wikimedia.org/beta_thumb.jpg", "width": 400, "height": 300}}
  }}
}`

func newTestClient(url string) *Client {
	c := NewClient(Options{Endpoint: url, RequestsPerSecond: 1000})
	c.backoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c
}

func TestFetchFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("generator") != "search" {
			t.Errorf("generator = %q", q.Get("generator"))
		}
		if q.Get("gsrsearch") != "History World War II" {
			t.Errorf("gsrsearch = %q", q.Get("gsrsearch"))
		}
		if q.Get("gsrsort") != "random" {
			t.Errorf("first page should sort randomly, got %q", q.Get("gsrsort"))
		}
		if q.Has("gsroffset") {
			t.Error("first page should not send an offset")
		}
		if q.Get("gsrlimit") != "10" {
			t.Errorf("gsrlimit = %q", q.Get("gsrlimit"))
		}
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("missing User-Agent")
		}
		fmt.Fprint(w, searchPage)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	batch, err := c.Fetch(context.Background(), feed.StreamKey{Category: "History", Subcategory: "World War II"}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(batch.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(batch.Items))
	}
	wantTitles := []string{"Alpha", "Beta", "Gamma"}
	for i, it := range batch.Items {
		if it.Title != wantTitles[i] {
			t.Errorf("item %d title = %q, want %q", i, it.Title, wantTitles[i])
		}
	}
	if batch.Items[0].ID != feed.StringID("100") {
		t.Errorf("ID = %v", batch.Items[0].ID)
	}
	if batch.Items[0].Extract != "Alpha is first." {
		t.Errorf("Extract = %q", batch.Items[0].Extract)
	}
	if batch.Items[1].Extract != "No description available." {
		t.Errorf("empty extract = %q", batch.Items[1].Extract)
	}
	if batch.Items[1].Image != "https://upload.wikimedia.org/beta_thumb.jpg" {
		t.Errorf("thumbnail fallback = %q", batch.Items[1].Image)
	}
	if !batch.HasNext || batch.Next != "10" {
		t.Errorf("continuation = %q/%v, want 10/true", batch.Next, batch.HasNext)
	}
}

func TestFetchContinuation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("gsroffset") != "20" {
			t.Errorf("gsroffset = %q", q.Get("gsroffset"))
		}
		if q.Get("gsrsort") != "relevance" {
			t.Errorf("gsrsort = %q", q.Get("gsrsort"))
		}
		if q.Get("gsrsearch") != "Science" {
			t.Errorf("General subcategory should search the category alone, got %q", q.Get("gsrsearch"))
		}
		fmt.Fprint(w, `{"query":{"pages":{"1":{"pageid":1,"title":"Last","index":1}}}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	batch, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Science", Subcategory: "General"}, "20")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if batch.HasNext || batch.Next != "" {
		t.Errorf("last page should have no continuation, got %q", batch.Next)
	}
}

func TestSearchTerm(t *testing.T) {
	tests := []struct {
		key   feed.StreamKey
		token string
		want  string
	}{
		{feed.StreamKey{Category: "Arts", Subcategory: "Music"}, "", "Arts Music"},
		{feed.StreamKey{Category: "Arts", Subcategory: "General"}, "", "Arts"},
		{feed.StreamKey{Category: "Arts"}, "", "Arts"},
		{feed.StreamKey{Category: "Arts", Subcategory: "Music"}, "100", "Arts Music"},
		{feed.StreamKey{Category: "Arts", Subcategory: "Music"}, "110", "Arts Music related"},
		{feed.StreamKey{Category: "Arts", Subcategory: "Music"}, "opaque", "Arts Music"},
	}
	for _, tt := range tests {
		if got := SearchTerm(tt.key, tt.token); got != tt.want {
			t.Errorf("SearchTerm(%v, %q) = %q, want %q", tt.key, tt.token, got, tt.want)
		}
	}
}

func TestFetchImagesOnly(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, searchPage)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	batch, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Nature", ImagesOnly: true}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("got %d items, want 2 with images", len(batch.Items))
	}
	for _, it := range batch.Items {
		if it.Image == "" {
			t.Errorf("%s has no image", it.Title)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchImagesOnlyReadsAheadBounded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"continue":{"gsroffset":%d},"query":{"pages":{"%d":{"pageid":%d,"title":"No image","index":1}}}}`, n*10, n, n)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	batch, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Nature", ImagesOnly: true}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(batch.Items) != 0 {
		t.Errorf("got %d items, want 0", len(batch.Items))
	}
	if calls.Load() != maxFilteredPages {
		t.Errorf("calls = %d, want %d", calls.Load(), maxFilteredPages)
	}
	if batch.Next != "30" {
		t.Errorf("Next = %q, want offset of the last page read", batch.Next)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, searchPage)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	batch, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Science"}, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(batch.Items) != 3 || calls.Load() != 3 {
		t.Errorf("items = %d, calls = %d", len(batch.Items), calls.Load())
	}
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Science"}, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls.Load())
	}
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Science"}, ""); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":"badvalue","info":"Unrecognized value"}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Fetch(context.Background(), feed.StreamKey{Category: "Science"}, ""); err == nil {
		t.Fatal("expected an error")
	}
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.backoffs = []time.Duration{time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, feed.StreamKey{Category: "Science"}, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestArticle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("titles") != "Alan Turing" {
			t.Errorf("titles = %q", r.URL.Query().Get("titles"))
		}
		fmt.Fprint(w, `{"query":{"pages":{"1208":{"pageid":1208,"title":"Alan Turing","extract":"Alan Mathison Turing was a mathematician.\n\n== Early life ==\nBorn in London.","fullurl":"https://en.wikipedia.org/wiki/Alan_Turing"}}}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	a, err := c.Article(context.Background(), "Alan Turing")
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if a.ID != "1208" || a.Title != "Alan Turing" {
		t.Errorf("article = %+v", a)
	}
	if a.Content == "" || a.URL == "" {
		t.Errorf("missing content or url: %+v", a)
	}
}

func TestArticleMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query":{"pages":{"-1":{"ns":0,"title":"Nope","missing":""}}}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Article(context.Background(), "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetRate(t *testing.T) {
	c := NewClient(Options{})
	if c.Rate() != 2 {
		t.Errorf("default rate = %v, want 2", c.Rate())
	}
	c.SetRate(7)
	if c.Rate() != 7 {
		t.Errorf("rate = %v, want 7", c.Rate())
	}
	c.SetRate(0)
	if c.Rate() != 7 {
		t.Error("non-positive rate should be ignored")
	}
}

func TestFirstSentence(t *testing.T) {
	tests := map[string]string{
		"":                   "No description available.",
		"One. Two.":          "One.",
		"  No period here  ": "No period here.",
		"Ends with period.":  "Ends with period.",
	}
	for in, want := range tests {
		if got := FirstSentence(in); got != want {
			t.Errorf("FirstSentence(%q) = %q, want %q", in, got, want)
		}
	}
}
