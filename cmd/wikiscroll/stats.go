package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func runStats(args []string) {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	top := fs.Int("top", 20, "Number of categories to list")
	fs.Parse(args)

	a := mustSetup(false)
	defer a.Close()

	if a.store == nil {
		fmt.Fprintln(os.Stderr, "the article store is disabled")
		return
	}

	stats, err := a.store.Stats()
	if err != nil {
		a.Close()
		fatalf("failed to read stats: %v", err)
	}

	fmt.Printf("Database:              %s\n", a.cfg.DBPath())
	fmt.Printf("Total articles:        %d\n", stats.Total)
	fmt.Printf("Unread:                %d\n", stats.Unread)
	if !stats.Newest.IsZero() {
		fmt.Printf("Newest fetch:          %s\n", stats.Newest.Local().Format("2006-01-02 15:04:05"))
	}

	if len(stats.Categories) == 0 {
		return
	}
	fmt.Printf("\nCategories (%d):\n", len(stats.Categories))
	for i, c := range stats.Categories {
		if i >= *top {
			fmt.Printf("  ... %d more\n", len(stats.Categories)-i)
			break
		}
		fmt.Printf("  %-35s %d\n", c.Category, c.Count)
	}
}
