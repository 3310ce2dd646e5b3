package store

import (
	"context"
	"time"

	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/logging"
	"github.com/abelbrown/wikiscroll/internal/otel"
)

// CachingGateway saves every batch its inner gateway returns. Save failures
// are logged and never reach the caller.
type CachingGateway struct {
	inner  feed.Gateway
	store  *Store
	events *otel.Logger
	now    func() time.Time
}

// NewCachingGateway wraps inner. events may be nil.
func NewCachingGateway(inner feed.Gateway, st *Store, events *otel.Logger) *CachingGateway {
	return &CachingGateway{inner: inner, store: st, events: events, now: time.Now}
}

// Fetch implements feed.Gateway.
func (g *CachingGateway) Fetch(ctx context.Context, key feed.StreamKey, token string) (feed.Batch, error) {
	batch, err := g.inner.Fetch(ctx, key, token)
	if err != nil || len(batch.Items) == 0 {
		return batch, err
	}

	if _, serr := g.store.SaveArticles(FromItems(key, batch.Items, g.now())); serr != nil {
		logging.Warn("Failed to cache articles", "stream", key.String(), "error", serr)
		if g.events != nil {
			g.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "store",
				Source: key.String(), Err: serr.Error(), Count: len(batch.Items)})
		}
	}
	return batch, nil
}
