package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/pflag"

	"github.com/abelbrown/wikiscroll/internal/config"
	"github.com/abelbrown/wikiscroll/internal/coord"
	"github.com/abelbrown/wikiscroll/internal/feed"
)

func runPrefetch(args []string) {
	fs := pflag.NewFlagSet("prefetch", pflag.ExitOnError)
	imagesOnly := fs.BoolP("images-only", "i", false, "Prefetch the images-only variant of each stream")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wikiscroll prefetch [category...] [flags]")
		fmt.Fprintln(os.Stderr, "With no category, every category is prefetched.")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	a := mustSetup(false)
	defer a.Close()

	if a.store == nil {
		a.Close()
		fatalf("the article store is disabled (store.enabled in %s)", config.ConfigPath())
	}

	names := fs.Args()
	if len(names) == 0 {
		names = a.catalog.Names()
	}
	var keys []feed.StreamKey
	for _, name := range names {
		if _, ok := a.catalog.Lookup(name); !ok {
			a.Close()
			fatalf("unknown category %q", name)
		}
		keys = append(keys, coord.KeysFor(a.catalog, name, *imagesOnly)...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var mu sync.Mutex
	p := coord.NewPrefetcher(a.router, a.store, keys, a.events)
	results := p.Run(ctx, func(r coord.Result) {
		mu.Lock()
		defer mu.Unlock()
		if r.Err != nil {
			fmt.Printf("  %-45s ERR %s\n", r.Key.String(), truncate(r.Err.Error(), 60))
			return
		}
		fmt.Printf("  %-45s %3d articles, %3d new\n", r.Key.String(), r.Items, r.New)
	})

	var fetched, added, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		fetched += r.Items
		added += r.New
	}
	fmt.Printf("\n%d streams: %d articles, %d new, %d failed\n", len(results), fetched, added, failed)
	if failed == len(results) && failed > 0 {
		os.Exit(1)
	}
}
