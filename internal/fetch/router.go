package fetch

import (
	"context"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

// Router sends each fetch to the featured gateway or to search, depending on
// whether the key's category is a feed category.
type Router struct {
	Featured feed.Gateway
	Search   feed.Gateway
	IsFeed   func(category string) bool
}

// Fetch implements feed.Gateway.
func (r *Router) Fetch(ctx context.Context, key feed.StreamKey, token string) (feed.Batch, error) {
	if r.IsFeed != nil && r.IsFeed(key.Category) && r.Featured != nil {
		return r.Featured.Fetch(ctx, key, token)
	}
	return r.Search.Fetch(ctx, key, token)
}
