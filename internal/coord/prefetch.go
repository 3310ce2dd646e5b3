// Package coord warms the article store by fetching the first page of many
// streams in parallel.
package coord

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/wikiscroll/internal/catalog"
	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/logging"
	"github.com/abelbrown/wikiscroll/internal/otel"
	"github.com/abelbrown/wikiscroll/internal/store"
)

// fetchTimeout is the timeout for each individual fetch.
const fetchTimeout = 30 * time.Second

// maxConcurrentFetches limits parallel fetch operations. The wiki client's
// rate limiter still paces the requests themselves.
const maxConcurrentFetches = 4

// Result reports the outcome for one stream.
type Result struct {
	Key   feed.StreamKey
	Items int // articles on the first page
	New   int // articles not already stored
	Err   error
}

// Prefetcher fetches first pages and saves them.
type Prefetcher struct {
	gateway feed.Gateway
	store   *store.Store     // optional: nil to fetch without saving
	keys    []feed.StreamKey // IMMUTABLE: set at construction, never modified
	events  *otel.Logger

	mu      sync.Mutex
	results []Result
}

// NewPrefetcher creates a Prefetcher for keys.
func NewPrefetcher(gw feed.Gateway, st *store.Store, keys []feed.StreamKey, events *otel.Logger) *Prefetcher {
	keysCopy := make([]feed.StreamKey, len(keys))
	copy(keysCopy, keys)

	return &Prefetcher{
		gateway: gw,
		store:   st,
		keys:    keysCopy,
		events:  events,
	}
}

// KeysFor returns one key per browsable subcategory of category, General
// first for search-backed categories.
func KeysFor(cat *catalog.Catalog, category string, imagesOnly bool) []feed.StreamKey {
	if c, ok := cat.Lookup(category); ok {
		category = c.Name
	}
	subs := cat.Subcategories(category)
	var keys []feed.StreamKey
	if !cat.IsFeed(category) && (len(subs) == 0 || subs[0] != catalog.General) {
		keys = append(keys, feed.StreamKey{Category: category, Subcategory: catalog.General, ImagesOnly: imagesOnly})
	}
	for _, s := range subs {
		keys = append(keys, feed.StreamKey{Category: category, Subcategory: s, ImagesOnly: imagesOnly})
	}
	return keys
}

// Run fetches every key, at most maxConcurrentFetches at a time, and
// returns one Result per key in key order. notify, when set, is called as
// each fetch completes (order non-deterministic). Run never fails as a
// whole: errors are reported per key.
func (p *Prefetcher) Run(ctx context.Context, notify func(Result)) []Result {
	p.mu.Lock()
	p.results = make([]Result, len(p.keys))
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, key := range p.keys {
		i, key := i, key
		g.Go(func() error {
			var r Result
			if err := ctx.Err(); err != nil {
				r = Result{Key: key, Err: err}
			} else {
				r = p.fetchOne(ctx, key)
			}

			p.mu.Lock()
			p.results[i] = r
			p.mu.Unlock()

			if notify != nil {
				notify(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}

// fetchOne fetches the first page of key with a timeout and saves it.
func (p *Prefetcher) fetchOne(ctx context.Context, key feed.StreamKey) Result {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	start := time.Now()
	batch, err := p.gateway.Fetch(fetchCtx, key, "")
	if err != nil {
		p.emit(otel.Event{Kind: otel.KindStreamError, Level: otel.LevelWarn, Source: key.String(), Err: err.Error(), Dur: time.Since(start)})
		return Result{Key: key, Err: err}
	}
	p.emit(otel.Event{Kind: otel.KindStreamBatch, Level: otel.LevelInfo, Source: key.String(), Count: len(batch.Items), Dur: time.Since(start)})

	r := Result{Key: key, Items: len(batch.Items)}
	if p.store == nil || len(batch.Items) == 0 {
		return r
	}

	n, err := p.store.SaveArticles(store.FromItems(key, batch.Items, time.Now()))
	if err != nil {
		logging.Warn("prefetch save failed", "stream", key.String(), "err", err)
		p.emit(otel.Event{Kind: otel.KindStoreError, Level: otel.LevelWarn, Source: key.String(), Err: err.Error()})
		r.Err = err
		return r
	}
	r.New = n
	return r
}

func (p *Prefetcher) emit(e otel.Event) {
	if p.events == nil {
		return
	}
	e.Comp = "coord"
	p.events.Emit(e)
}
