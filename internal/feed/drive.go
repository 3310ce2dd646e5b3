package feed

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Drive runs cmd, and every command that follows from it, on the calling
// goroutine, feeding each resulting message back into c.Update. It returns
// when no work is left (the controller is idle or exhausted), when stop
// reports true, or when ctx is done. Each command runs on its own goroutine so
// a pending tick or fetch does not hold Drive past ctx. It is the headless
// counterpart of the Bubble Tea runtime.
func Drive(ctx context.Context, c *Controller, cmd tea.Cmd, stop func() bool) error {
	if c.Closed() {
		return ErrClosed
	}

	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop != nil && stop() {
			return nil
		}

		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}

		msg, err := run(ctx, next)
		if err != nil {
			return err
		}
		switch msg := msg.(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			if follow := c.Update(msg); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	return nil
}

// run executes cmd, returning early with ctx's error if ctx finishes first.
// An abandoned command finishes in the background and its message is dropped.
func run(ctx context.Context, cmd tea.Cmd) (tea.Msg, error) {
	out := make(chan tea.Msg, 1)
	go func() { out <- cmd() }()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-out:
		return msg, nil
	}
}

// Collector is a Consumer that accumulates everything it is told.
// The headless dump command uses it; so do tests.
type Collector struct {
	Batches   [][]Item
	Items     []Item
	Errors    []string
	Exhausted bool
	Loading   bool

	// LoadingChanges counts OnLoadingChanged calls.
	LoadingChanges int

	// OnItem, when set, is called for every emitted item in order.
	OnItem func(Item)
}

func (c *Collector) OnBatch(items []Item) {
	c.Batches = append(c.Batches, items)
	c.Items = append(c.Items, items...)
	if c.OnItem != nil {
		for _, item := range items {
			c.OnItem(item)
		}
	}
}

func (c *Collector) OnExhausted() { c.Exhausted = true }

func (c *Collector) OnError(message string) { c.Errors = append(c.Errors, message) }

func (c *Collector) OnLoadingChanged(loading bool) {
	c.Loading = loading
	c.LoadingChanges++
}
