// Package ui provides the Bubble Tea TUI for wikiscroll.
package ui

import "github.com/abelbrown/wikiscroll/internal/wiki"

// PollTick is the periodic scroll-position check. When the cursor sits near
// the end of the list it triggers the next fetch.
type PollTick struct{}

// ArticleLoaded is sent when the full text of an article has been fetched.
type ArticleLoaded struct {
	Title   string
	Article wiki.Article
	Err     error
}

// ItemMarkedRead is sent when an item has been marked as read in the store.
type ItemMarkedRead struct {
	ID  string
	Err error
}

// ConfigReloaded is sent when the config file changed on disk.
type ConfigReloaded struct {
	RequestsPerSecond float64
	Err               error
}
