package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/abelbrown/wikiscroll/internal/config"
	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/logging"
	"github.com/abelbrown/wikiscroll/internal/otel"
	"github.com/abelbrown/wikiscroll/internal/ui"
)

func runReader(args []string) {
	fs := pflag.NewFlagSet("wikiscroll", pflag.ExitOnError)
	imagesOnly := fs.BoolP("images-only", "i", false, "Only show articles that carry a picture")
	debug := fs.Bool("debug", false, "Write debug-level entries to the log file")
	overlay := fs.Bool("debug-overlay", false, "Open the event overlay at start")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(args)

	a := mustSetup(*debug)
	defer a.Close()

	key := feed.StreamKey{ImagesOnly: *imagesOnly || a.cfg.UI.ImagesOnly}
	if fs.NArg() > 0 {
		k, err := feed.ParsePath(fs.Arg(0), key.ImagesOnly)
		if err != nil {
			a.Close()
			fatalf("%v", err)
		}
		key = a.streamKey(k.Category, k.Subcategory, k.ImagesOnly)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := ui.AppConfig{
		Catalog: a.catalog,
		Key:     key,
		NewController: func(k feed.StreamKey, consumer feed.Consumer) *feed.Controller {
			logging.Info("stream opened", "stream", k.String())
			return feed.NewController(ctx, k, a.gateway, consumer, a.feedOptions())
		},
		LoadArticle: func(title string) tea.Cmd {
			return func() tea.Msg {
				art, err := a.client.Article(ctx, title)
				return ui.ArticleLoaded{Title: title, Article: art, Err: err}
			}
		},
		ProximityRows: a.cfg.UI.ProximityRows,
		PollInterval:  a.cfg.PollInterval(),
		Obs: ui.ObsConfig{
			Ring:      a.ring,
			Events:    a.events,
			ShowDebug: *overlay || a.cfg.UI.ShowDebugOverlay,
			Trace:     otel.TraceEnabled(),
		},
	}
	if a.store != nil {
		cfg.MarkRead = func(id string) tea.Cmd {
			return func() tea.Msg {
				return ui.ItemMarkedRead{ID: id, Err: a.store.MarkRead(id)}
			}
		}
	}

	program := tea.NewProgram(ui.NewAppWithConfig(cfg), tea.WithAltScreen())

	err := config.Watch(ctx, config.ConfigPath(),
		func(c *config.Config) {
			a.client.SetRate(c.Wiki.RequestsPerSecond)
			a.events.Emit(otel.Event{
				Level: otel.LevelInfo,
				Kind:  otel.KindConfigReload,
				Comp:  "main",
				Msg:   fmt.Sprintf("%.1f req/s", c.Wiki.RequestsPerSecond),
			})
			program.Send(ui.ConfigReloaded{RequestsPerSecond: c.Wiki.RequestsPerSecond})
		},
		func(err error) {
			logging.Warn("config reload failed", "err", err)
			program.Send(ui.ConfigReloaded{Err: err})
		})
	if err != nil {
		logging.Warn("config watch disabled", "err", err)
	}

	if _, err := program.Run(); err != nil {
		logging.Error("program exited", "err", err)
		a.events.Error(otel.KindError, "main", err)
	}
}
