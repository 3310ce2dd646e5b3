// Command wikiscroll is an endless, randomized Wikipedia reader for the
// terminal.
//
// Usage:
//
//	wikiscroll [flags] [/articles/<category>/<subcategory>]   Run the reader
//	wikiscroll dump <category> <subcategory>                  Print a stream as JSON lines
//	wikiscroll prefetch [category...]                         Store first pages of every subcategory
//	wikiscroll stats                                          Stored article counts
//	wikiscroll events                                         JSONL event log viewer
package main

import (
	"fmt"
	"os"
	"strings"
)

const usage = `wikiscroll: endless Wikipedia in the terminal

Usage:
  wikiscroll [flags] [/articles/<category>/<subcategory>]
  wikiscroll <command> [flags]

Commands:
  dump        Drive a stream headlessly and print articles as JSON lines
  prefetch    Fetch the first page of every subcategory and store it
  stats       Stored article counts by category
  events      JSONL event log viewer

Reader flags:
  -i, --images-only     Only show articles that carry a picture
      --debug           Write debug-level entries to the log file
      --debug-overlay   Open the event overlay at start

Environment:
  WIKISCROLL_HOME        Data directory (default: ~/.wikiscroll)
  WIKISCROLL_ENDPOINT    MediaWiki API endpoint
  WIKISCROLL_USER_AGENT  User-Agent sent with every request
  WIKISCROLL_DB          Article database path

Run 'wikiscroll <command> -h' for command-specific help.
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 || strings.HasPrefix(args[0], "-") || strings.HasPrefix(args[0], "/") {
		runReader(args)
		return
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "dump":
		runDump(args)
	case "prefetch":
		runPrefetch(args)
	case "stats":
		runStats(args)
	case "events":
		runEvents(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "wikiscroll: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
