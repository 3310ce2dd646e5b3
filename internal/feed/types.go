// Package feed implements the paginated article stream: a controller that
// pulls batches from a Gateway as the reader nears the end of the list,
// suppresses items it has already delivered, and recovers from pages that
// contain nothing new.
//
// The controller is driven from a single goroutine. In the TUI that is the
// Bubble Tea update loop; headless callers use Drive. Network calls and
// delayed continuations are returned as tea.Cmd values and report back
// through Controller.Update.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPath is returned by ParsePath for paths that do not name a stream.
var ErrInvalidPath = errors.New("feed: invalid stream path")

// ErrClosed is returned when driving a controller that has been closed.
var ErrClosed = errors.New("feed: controller closed")

// StreamKey identifies one article source. A controller serves exactly one key;
// switching category or toggling ImagesOnly means building a new controller.
type StreamKey struct {
	Category    string
	Subcategory string
	ImagesOnly  bool
}

// String renders the key as "category/subcategory", with "?images" appended
// when ImagesOnly is set.
func (k StreamKey) String() string {
	s := k.Category + "/" + k.Subcategory
	if k.ImagesOnly {
		s += "?images"
	}
	return s
}

// Path returns the navigation path the key was derived from.
func (k StreamKey) Path() string {
	return "/articles/" + url.PathEscape(k.Category) + "/" + url.PathEscape(k.Subcategory)
}

// WithImagesOnly returns a copy of k with the images-only filter set to v.
func (k StreamKey) WithImagesOnly(v bool) StreamKey {
	k.ImagesOnly = v
	return k
}

// ParsePath derives a StreamKey from a navigation path of the form
// /articles/<category>/<subcategory>, with at most one trailing slash.
// Any further segment is rejected. Segments are URL-unescaped.
func ParsePath(path string, imagesOnly bool) (StreamKey, error) {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "articles" {
		return StreamKey{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	category, err := url.PathUnescape(parts[2])
	if err != nil {
		return StreamKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
	}
	subcategory, err := url.PathUnescape(parts[3])
	if err != nil {
		return StreamKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
	}
	if strings.TrimSpace(category) == "" || strings.TrimSpace(subcategory) == "" {
		return StreamKey{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return StreamKey{Category: category, Subcategory: subcategory, ImagesOnly: imagesOnly}, nil
}

// Item is one article card. The controller only looks at ID.
type Item struct {
	ID      ItemID `json:"id"`
	Title   string `json:"title"`
	Extract string `json:"extract,omitempty"`
	Image   string `json:"image,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Batch is one page returned by a Gateway. HasNext reports whether Next
// carries a continuation token; when false the source is exhausted.
type Batch struct {
	Items   []Item
	Next    string
	HasNext bool
}

// Gateway fetches one page of a stream. An empty token requests the first
// page. Implementations must honor ctx cancellation.
type Gateway interface {
	Fetch(ctx context.Context, key StreamKey, token string) (Batch, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, key StreamKey, token string) (Batch, error)

// Fetch calls f.
func (f GatewayFunc) Fetch(ctx context.Context, key StreamKey, token string) (Batch, error) {
	return f(ctx, key, token)
}

// Consumer receives everything the controller has to say. Calls arrive on
// the goroutine that drives the controller, in acceptance order.
type Consumer interface {
	OnBatch(items []Item)
	OnExhausted()
	OnError(message string)
	OnLoadingChanged(loading bool)
}

// State is the controller's load state.
type State int

const (
	Idle State = iota
	Loading
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
