package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/wikiscroll/internal/catalog"
	"github.com/abelbrown/wikiscroll/internal/feed"
	"github.com/abelbrown/wikiscroll/internal/otel"
	"github.com/abelbrown/wikiscroll/internal/wiki"
)

type mode int

const (
	modeStream mode = iota
	modeCategories
	modeSubcategories
	modeArticle
)

// chrome is the number of lines around the list: header, footer, status bar.
const chrome = 3

// ObsConfig wires observability into the app.
type ObsConfig struct {
	Ring   *otel.RingBuffer
	Events *otel.Logger

	// ShowDebug opens the debug overlay at start. Ignored without Ring.
	ShowDebug bool

	// Trace records the type of every message Update handles, spinner
	// ticks aside. Ignored without Events.
	Trace bool
}

// AppConfig holds the app's dependencies. Everything is optional except
// NewController, without which no stream can be shown.
type AppConfig struct {
	Catalog *catalog.Catalog

	// Key is the stream to open at start. With an empty Category the app
	// starts in the category picker, and the first stream picked inherits
	// Key.ImagesOnly.
	Key feed.StreamKey

	// NewController creates the controller for a stream, reporting to
	// consumer. The app closes it when the stream changes.
	NewController func(key feed.StreamKey, consumer feed.Consumer) *feed.Controller

	// LoadArticle returns a Cmd that fetches the full article for title and
	// answers with ArticleLoaded.
	LoadArticle func(title string) tea.Cmd

	// MarkRead returns a Cmd that records id as read and answers with
	// ItemMarkedRead.
	MarkRead func(id string) tea.Cmd

	// ProximityRows is how close to the end of the list the cursor must be
	// to trigger the next fetch.
	ProximityRows int

	// PollInterval is the period of the scroll-position check. Zero disables it.
	PollInterval time.Duration

	Obs ObsConfig
}

// feedView is the list side of a stream. It is the Consumer the stream's
// controller reports to.
type feedView struct {
	entries   []entry
	loading   bool
	exhausted bool
	lastErr   string

	// errored holds the poll trigger off after a failure until the user
	// presses a key.
	errored bool
}

func (v *feedView) OnBatch(items []feed.Item) {
	for _, it := range items {
		v.entries = append(v.entries, entry{Item: it})
	}
}

func (v *feedView) OnExhausted() { v.exhausted = true }

func (v *feedView) OnError(message string) {
	v.lastErr = message
	v.errored = true
}

func (v *feedView) OnLoadingChanged(loading bool) { v.loading = loading }

// clear drops the listed entries before a reload. loading is left alone: it
// mirrors the controller, which reports only changes.
func (v *feedView) clear() {
	v.entries = nil
	v.exhausted = false
	v.lastErr = ""
	v.errored = false
}

// App is the root Bubble Tea model.
// App does not fetch anything itself: its stream controller and the
// configured command functions do.
type App struct {
	cfg AppConfig

	ctrl *feed.Controller
	view *feedView

	cursor int
	width  int
	height int
	ready  bool
	mode   mode
	err    error
	note   string

	picker         list.Model
	pickedCategory string

	reader         viewport.Model
	article        wiki.Article
	articleEntry   entry
	articleLoading bool

	spinner      spinner.Model
	debugVisible bool
}

// NewAppWithConfig creates an App. The initial stream is created here and
// started by Init.
func NewAppWithConfig(cfg AppConfig) App {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.ProximityRows <= 0 {
		cfg.ProximityRows = 3
	}

	a := App{
		cfg:     cfg,
		view:    &feedView{},
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		reader:  viewport.New(80, 20),

		debugVisible: cfg.Obs.ShowDebug && cfg.Obs.Ring != nil,
	}
	if cfg.Key.Category != "" && cfg.NewController != nil {
		a.ctrl = cfg.NewController(cfg.Key, a.view)
	} else {
		a.openCategories()
	}
	return a
}

// Init starts the initial stream, the spinner, and the poll loop.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.pollCmd()}
	if a.ctrl != nil {
		cmds = append(cmds, a.ctrl.Reset())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.cfg.Obs.Trace && a.cfg.Obs.Events != nil {
		if _, tick := msg.(spinner.TickMsg); !tick {
			a.cfg.Obs.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindMsgReceived, Comp: "ui", Msg: fmt.Sprintf("%T", msg)})
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.reader.Width = msg.Width
		a.reader.Height = max(msg.Height-2, 1)
		switch a.mode {
		case modeCategories, modeSubcategories:
			a.picker.SetSize(msg.Width, max(msg.Height-1, 1))
		case modeArticle:
			a.reader.SetContent(formatArticle(a.article, a.width))
		}
		return a, nil

	case tea.KeyMsg:
		if a.cfg.Obs.Events != nil {
			a.cfg.Obs.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindKeyPress, Comp: "ui", Msg: msg.String()})
		}
		return a.handleKeyMsg(msg)

	case feed.BatchLoaded, feed.ContinueTick:
		if a.ctrl == nil {
			return a, nil
		}
		return a, a.ctrl.Update(msg)

	case PollTick:
		var cmd tea.Cmd
		if a.mode == modeStream && !a.view.errored && a.nearEnd() {
			cmd = a.trigger()
		}
		return a, tea.Batch(cmd, a.pollCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case ArticleLoaded:
		if a.mode != modeArticle || msg.Title != a.articleEntry.Title {
			return a, nil
		}
		a.articleLoading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.article = msg.Article
		a.reader.SetContent(formatArticle(a.article, a.width))
		a.reader.GotoTop()
		return a, nil

	case ItemMarkedRead:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		for i := range a.view.entries {
			if a.view.entries[i].ID.String() == msg.ID {
				a.view.entries[i].Read = true
				break
			}
		}
		return a, nil

	case ConfigReloaded:
		if msg.Err != nil {
			a.err = fmt.Errorf("config reload: %w", msg.Err)
		} else {
			a.note = fmt.Sprintf("config reloaded (%.1f req/s)", msg.RequestsPerSecond)
		}
		return a, nil
	}

	// Anything else belongs to the active sub-model.
	var cmd tea.Cmd
	switch a.mode {
	case modeCategories, modeSubcategories:
		a.picker, cmd = a.picker.Update(msg)
	case modeArticle:
		a.reader, cmd = a.reader.Update(msg)
	}
	return a, cmd
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		a.closeStream()
		return a, tea.Quit
	}

	switch a.mode {
	case modeCategories, modeSubcategories:
		return a.handlePickerKey(msg)
	case modeArticle:
		return a.handleArticleKey(msg)
	}

	// Any key dismisses errors and re-arms the poll trigger.
	a.err = nil
	a.note = ""
	a.view.lastErr = ""
	a.view.errored = false

	switch msg.String() {
	case "q":
		a.closeStream()
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.view.entries)-1 {
			a.cursor++
		}
		return a, a.proximityTrigger()

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "pgdown", "ctrl+d", " ":
		a.cursor = min(a.cursor+visibleRows(a.streamHeight()), max(len(a.view.entries)-1, 0))
		return a, a.proximityTrigger()

	case "pgup", "ctrl+u":
		a.cursor = max(a.cursor-visibleRows(a.streamHeight()), 0)
		return a, nil

	case "g", "home":
		a.cursor = 0
		return a, nil

	case "G", "end":
		if len(a.view.entries) > 0 {
			a.cursor = len(a.view.entries) - 1
		}
		return a, a.proximityTrigger()

	case "enter":
		return a.openArticle()

	case "r":
		if a.ctrl == nil {
			return a, nil
		}
		a.cursor = 0
		a.view.clear()
		return a, a.ctrl.Reset()

	case "i":
		if a.ctrl == nil {
			return a, nil
		}
		key := a.ctrl.Key()
		return a, a.switchStream(key.WithImagesOnly(!key.ImagesOnly))

	case "c":
		a.openCategories()
		return a, nil

	case "?":
		a.debugVisible = !a.debugVisible
		return a, nil
	}

	return a, nil
}

func (a App) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.picker.FilterState() == list.Filtering {
		var cmd tea.Cmd
		a.picker, cmd = a.picker.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "esc", "q":
		switch {
		case a.mode == modeSubcategories:
			a.openCategories()
		case a.ctrl != nil:
			a.mode = modeStream
		case msg.String() == "q":
			return a, tea.Quit
		}
		return a, nil

	case "enter":
		item, ok := a.picker.SelectedItem().(pickerItem)
		if !ok {
			return a, nil
		}
		if a.mode == modeCategories {
			a.pickedCategory = item.name
			a.picker = newSubcategoryList(a.cfg.Catalog, item.name, a.width, max(a.height-1, 1))
			a.picker.DisableQuitKeybindings()
			a.mode = modeSubcategories
			return a, nil
		}
		key := feed.StreamKey{Category: a.pickedCategory, Subcategory: item.name, ImagesOnly: a.cfg.Key.ImagesOnly}
		if a.ctrl != nil {
			key.ImagesOnly = a.ctrl.Key().ImagesOnly
		}
		return a, a.switchStream(key)
	}

	var cmd tea.Cmd
	a.picker, cmd = a.picker.Update(msg)
	return a, cmd
}

func (a App) handleArticleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "backspace":
		a.mode = modeStream
		a.articleLoading = false
		a.err = nil
		return a, nil
	}
	var cmd tea.Cmd
	a.reader, cmd = a.reader.Update(msg)
	return a, cmd
}

// openCategories shows the category picker.
func (a *App) openCategories() {
	a.picker = newCategoryList(a.cfg.Catalog, max(a.width, 20), max(a.height-1, 1))
	a.picker.DisableQuitKeybindings()
	a.pickedCategory = ""
	a.mode = modeCategories
}

// openArticle shows the reader for the entry under the cursor.
func (a App) openArticle() (tea.Model, tea.Cmd) {
	if a.cursor >= len(a.view.entries) {
		return a, nil
	}
	e := a.view.entries[a.cursor]
	a.mode = modeArticle
	a.articleEntry = e
	a.article = fallbackArticle(e)
	a.reader.SetContent(formatArticle(a.article, a.width))
	a.reader.GotoTop()

	var cmds []tea.Cmd
	if a.cfg.LoadArticle != nil {
		a.articleLoading = true
		cmds = append(cmds, a.cfg.LoadArticle(e.Title))
	}
	if a.cfg.MarkRead != nil {
		cmds = append(cmds, a.cfg.MarkRead(e.ID.String()))
	}
	return a, tea.Batch(cmds...)
}

// switchStream closes the current stream and opens key in its place.
func (a *App) switchStream(key feed.StreamKey) tea.Cmd {
	a.closeStream()
	a.view = &feedView{}
	a.cursor = 0
	a.mode = modeStream
	if a.cfg.NewController == nil {
		return nil
	}
	a.ctrl = a.cfg.NewController(key, a.view)
	return a.ctrl.Reset()
}

func (a *App) closeStream() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
}

// proximityTrigger asks for more when the cursor is near the end of the list.
func (a App) proximityTrigger() tea.Cmd {
	if len(a.view.entries)-1-a.cursor > a.cfg.ProximityRows {
		return nil
	}
	return a.trigger()
}

// nearEnd reports whether the last entry on screen is within ProximityRows
// of the end of the list. An empty or short list is always near its end.
func (a App) nearEnd() bool {
	n := len(a.view.entries)
	if n == 0 {
		return true
	}
	return lastVisible(n, a.cursor, a.streamHeight()) >= n-1-a.cfg.ProximityRows
}

func (a App) trigger() tea.Cmd {
	if a.ctrl == nil {
		return nil
	}
	return a.ctrl.OnTrigger()
}

func (a App) pollCmd() tea.Cmd {
	if a.cfg.PollInterval <= 0 {
		return nil
	}
	return tea.Tick(a.cfg.PollInterval, func(time.Time) tea.Msg { return PollTick{} })
}

// streamHeight is the number of lines available to the list.
func (a App) streamHeight() int {
	h := a.height - chrome
	if a.errorText() != "" {
		h--
	}
	return max(h, 1)
}

func (a App) errorText() string {
	switch {
	case a.err != nil:
		return a.err.Error()
	case a.view.lastErr != "":
		return a.view.lastErr
	}
	return ""
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debugVisible {
		overlay := debugOverlay(a.cfg.Obs.Ring, a.width, a.height-1)
		if overlay == "" {
			overlay = HelpStyle.Render("No event buffer attached.")
		}
		return lipgloss.NewStyle().Height(a.height-1).Render(overlay) + "\n" + debugStatusBar(a.width)
	}

	switch a.mode {
	case modeCategories, modeSubcategories:
		return a.picker.View()
	case modeArticle:
		return a.articleView()
	}

	var b strings.Builder
	if a.ctrl != nil {
		b.WriteString(RenderHeader(a.ctrl.Key(), a.width))
	}
	b.WriteString("\n")

	stream := RenderStream(a.view.entries, a.cursor, a.width, a.streamHeight())
	b.WriteString(lipgloss.NewStyle().Height(a.streamHeight()).Render(strings.TrimSuffix(stream, "\n")))
	b.WriteString("\n")
	b.WriteString(RenderFooter(a.view.loading, a.view.exhausted, a.spinner.View(), a.width))
	b.WriteString("\n")

	if text := a.errorText(); text != "" {
		b.WriteString(ErrorStyle.Width(a.width).Render("Error: " + text + " (press any key to dismiss)"))
		b.WriteString("\n")
	}

	b.WriteString(RenderStatusBar(a.cursor, len(a.view.entries), a.width, a.note))
	return b.String()
}

func (a App) articleView() string {
	title := ArticleTitle.Render(a.articleEntry.Title)
	if a.articleLoading {
		title += " " + a.spinner.View()
	}

	status := StatusBarKey.Render("esc") + StatusBarText.Render(":back ") +
		StatusBarKey.Render("j/k") + StatusBarText.Render(":scroll ")
	if a.err != nil {
		status += ErrorStyle.Render(a.err.Error())
	} else {
		status += StatusBarText.Render(fmt.Sprintf("%3.f%%", a.reader.ScrollPercent()*100))
	}
	return title + "\n" + a.reader.View() + "\n" + StatusBar.Width(a.width).Render(status)
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Entries returns the listed articles (for testing).
func (a App) Entries() []feed.Item {
	items := make([]feed.Item, len(a.view.entries))
	for i, e := range a.view.entries {
		items[i] = e.Item
	}
	return items
}

// Stream returns the current stream controller, nil when none is open.
func (a App) Stream() *feed.Controller {
	return a.ctrl
}
