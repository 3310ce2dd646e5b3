package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/abelbrown/wikiscroll/internal/feed"
)

func runDump(args []string) {
	fs := pflag.NewFlagSet("dump", pflag.ExitOnError)
	count := fs.IntP("count", "n", 50, "Stop after this many articles")
	imagesOnly := fs.BoolP("images-only", "i", false, "Only emit articles that carry a picture")
	maxErrors := fs.Int("max-errors", 3, "Give up after this many failed fetches")
	noStore := fs.Bool("no-store", false, "Do not save fetched articles")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wikiscroll dump <category> <subcategory> [flags]")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(2)
	}

	a := mustSetup(false)
	defer a.Close()

	key := a.streamKey(fs.Arg(0), fs.Arg(1), *imagesOnly)
	gw := a.gateway
	if *noStore {
		gw = a.router
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	printed := 0
	col := &feed.Collector{
		OnItem: func(item feed.Item) {
			if printed >= *count {
				return
			}
			if err := enc.Encode(item); err == nil {
				printed++
			}
		},
	}
	done := func() bool { return printed >= *count }

	ctrl := feed.NewController(ctx, key, gw, col, a.feedOptions())
	defer ctrl.Close()

	failures := 0
	cmd := ctrl.Reset()
	for {
		if err := feed.Drive(ctx, ctrl, cmd, done); err != nil {
			a.Close()
			fatalf("%v", err)
		}
		if done() || col.Exhausted {
			break
		}
		if len(col.Errors) > failures {
			failures = len(col.Errors)
			if failures >= *maxErrors {
				a.Close()
				fatalf("giving up after %d errors: %s", failures, strings.Join(col.Errors, "; "))
			}
		}
		if cmd = ctrl.OnTrigger(); cmd == nil {
			break
		}
	}

	fmt.Fprintf(os.Stderr, "%s: %d articles (%d seen)", key, printed, ctrl.Seen())
	if col.Exhausted {
		fmt.Fprint(os.Stderr, ", exhausted")
	}
	fmt.Fprintln(os.Stderr)
}
