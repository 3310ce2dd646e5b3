package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/wikiscroll/internal/catalog"
	"github.com/abelbrown/wikiscroll/internal/config"
	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/fetch"
	"github.com/abelbrown/wikiscroll/internal/logging"
	"github.com/abelbrown/wikiscroll/internal/otel"
	"github.com/abelbrown/wikiscroll/internal/store"
	"github.com/abelbrown/wikiscroll/internal/wiki"
)

// ringSize is the number of recent events kept for the debug overlay.
const ringSize = 512

// app bundles what the subcommands share.
type app struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	events  *otel.Logger
	ring    *otel.RingBuffer
	store   *store.Store // nil when the store is disabled
	client  *wiki.Client

	// router sends fetches to search or the featured feeds. gateway is
	// router wrapped so that every page is saved to the store.
	router  feed.Gateway
	gateway feed.Gateway

	eventFile *os.File
}

// setup loads the config and opens the logs, the event log, the store and
// the gateways.
func setup(debug bool) (*app, error) {
	dir := config.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	if err := logging.Init(dir, level); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		logging.Close()
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		cfg:     cfg,
		catalog: catalog.Default(),
		ring:    otel.NewRingBuffer(ringSize),
	}

	f, err := os.OpenFile(eventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Warn("event log disabled", "err", err)
		a.events = otel.NewNullLogger()
	} else {
		a.eventFile = f
		a.events = otel.NewLogger(f)
	}
	a.events.SetRingBuffer(a.ring)
	a.events.Info(otel.KindStartup, "main", "wikiscroll started")

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.DBPath())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.store = st
	}

	a.client = wiki.NewClient(wiki.Options{
		Endpoint:          cfg.Wiki.Endpoint,
		UserAgent:         cfg.Wiki.UserAgent,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.Wiki.RequestsPerSecond,
		PageSize:          cfg.Wiki.PageSize,
		Events:            a.events,
	})
	a.router = &fetch.Router{
		Featured: fetch.NewFeaturedGateway(cfg.Wiki.FeedEndpoint, cfg.Wiki.UserAgent, cfg.Timeout()),
		Search:   a.client,
		IsFeed:   a.catalog.IsFeed,
	}
	a.gateway = a.router
	if a.store != nil {
		a.gateway = store.NewCachingGateway(a.router, a.store, a.events)
	}
	return a, nil
}

// mustSetup is setup for commands that cannot do anything without it.
func mustSetup(debug bool) *app {
	a, err := setup(debug)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// feedOptions returns controller options from the config.
func (a *app) feedOptions() feed.Options {
	return feed.Options{
		ThinThreshold: a.cfg.Feed.ThinThreshold,
		RetryDelay:    a.cfg.RetryDelay(),
		ThinDelay:     a.cfg.ThinDelay(),
		Events:        a.events,
	}
}

// streamKey resolves a category and subcategory typed on the command line
// to their catalog spelling.
func (a *app) streamKey(category, subcategory string, imagesOnly bool) feed.StreamKey {
	if c, ok := a.catalog.Lookup(category); ok {
		category = c.Name
		for _, s := range c.Subcategories {
			if strings.EqualFold(s, subcategory) {
				subcategory = s
			}
		}
	}
	return feed.StreamKey{Category: category, Subcategory: subcategory, ImagesOnly: imagesOnly}
}

// Close releases everything setup opened.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.events != nil {
		a.events.Info(otel.KindShutdown, "main", "wikiscroll stopped")
		a.events.Close()
	}
	if a.eventFile != nil {
		a.eventFile.Close()
	}
	logging.Close()
}

// eventLogPath returns the path to wikiscroll.events.jsonl.
func eventLogPath() string {
	return filepath.Join(config.DataDir(), "wikiscroll.events.jsonl")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "wikiscroll: "+format+"\n", args...)
	os.Exit(1)
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
