package feed

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/wikiscroll/internal/otel"
)

const (
	// DefaultThinThreshold is the fresh-item count below which the controller
	// fetches another page on its own.
	DefaultThinThreshold = 5

	// DefaultRetryDelay is the pause before re-requesting after a page that
	// held only already-seen items.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultThinDelay is the pause before following up on a thin batch.
	DefaultThinDelay = time.Second
)

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	ThinThreshold int
	RetryDelay    time.Duration
	ThinDelay     time.Duration

	// Events receives stream lifecycle events. Optional.
	Events *otel.Logger
}

func (o Options) withDefaults() Options {
	if o.ThinThreshold <= 0 {
		o.ThinThreshold = DefaultThinThreshold
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.ThinDelay <= 0 {
		o.ThinDelay = DefaultThinDelay
	}
	return o
}

// BatchLoaded carries a gateway response back into the controller.
type BatchLoaded struct {
	ctrl  *Controller
	gen   uint64
	Token string // token the request was made with
	Batch Batch
	Err   error
	Dur   time.Duration
}

// ContinueTick fires when a scheduled automatic continuation is due.
type ContinueTick struct {
	ctrl *Controller
	gen  uint64
	seq  uint64
}

// Controller owns the state of one stream. It is not safe for concurrent use:
// every method, including Update, must be called from the same goroutine.
type Controller struct {
	key      StreamKey
	gateway  Gateway
	consumer Consumer
	opts     Options

	ctx       context.Context
	cancel    context.CancelFunc
	genCtx    context.Context
	genCancel context.CancelFunc

	state   State
	seen    *SeenSet
	token   string
	hasMore bool
	loading bool // last value reported to OnLoadingChanged
	closed  bool

	// gen changes on Reset and Close; responses and ticks from an older
	// generation are dropped.
	gen uint64
	// pending is the seq of the continuation currently scheduled, 0 if none.
	pending uint64
	seq     uint64
}

// NewController creates an idle controller for key. Nothing is fetched
// until Reset or OnTrigger is called. Cancelling ctx aborts in-flight
// requests; Close does the same.
func NewController(ctx context.Context, key StreamKey, gw Gateway, consumer Consumer, opts Options) *Controller {
	ctx, cancel := context.WithCancel(ctx)
	genCtx, genCancel := context.WithCancel(ctx)
	return &Controller{
		key:       key,
		gateway:   gw,
		consumer:  consumer,
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		genCtx:    genCtx,
		genCancel: genCancel,
		state:     Idle,
		seen:      NewSeenSet(),
		hasMore:   true,
	}
}

// Key returns the stream key.
func (c *Controller) Key() StreamKey { return c.key }

// State returns the current load state.
func (c *Controller) State() State { return c.state }

// Token returns the continuation token the next request will use.
func (c *Controller) Token() string { return c.token }

// HasMore reports whether the source may still hold unseen pages.
func (c *Controller) HasMore() bool { return c.hasMore }

// Seen returns the number of distinct items delivered so far.
func (c *Controller) Seen() int { return c.seen.Len() }

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool { return c.closed }

// Reset starts the stream over: seen ids and token are cleared, any pending
// continuation is cancelled, and the first page is requested.
func (c *Controller) Reset() tea.Cmd {
	if c.closed {
		return nil
	}
	c.gen++
	c.pending = 0
	c.genCancel()
	c.genCtx, c.genCancel = context.WithCancel(c.ctx)

	c.seen.Reset()
	c.token = ""
	c.hasMore = true
	c.state = Idle
	c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamReset})
	return c.requestNext()
}

// OnTrigger asks for the next page. It is ignored unless the controller is
// idle, so redundant triggers never stack up requests.
func (c *Controller) OnTrigger() tea.Cmd {
	if c.closed || c.state != Idle {
		c.emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindTriggerDropped, Msg: c.state.String()})
		return nil
	}
	return c.requestNext()
}

// Close tears the controller down. In-flight requests are cancelled and any
// message that arrives afterwards is ignored. The consumer is not called again.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.pending = 0
	c.genCancel()
	c.cancel()
}

// Update applies a message produced by one of the controller's commands.
// Messages belonging to another controller, an earlier generation, or a
// superseded continuation are ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case BatchLoaded:
		if msg.ctrl != c || msg.gen != c.gen || c.closed || c.state != Loading || c.pending != 0 {
			return nil
		}
		return c.accept(msg)

	case ContinueTick:
		if msg.ctrl != c || msg.gen != c.gen || c.closed || msg.seq != c.pending {
			return nil
		}
		c.pending = 0
		return c.requestNext()
	}
	return nil
}

// Owns reports whether msg was produced by this controller.
func (c *Controller) Owns(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case BatchLoaded:
		return msg.ctrl == c
	case ContinueTick:
		return msg.ctrl == c
	}
	return false
}

// requestNext moves to Loading and returns the command performing the fetch.
func (c *Controller) requestNext() tea.Cmd {
	c.state = Loading
	c.setLoading(true)

	gw, ctx := c.gateway, c.genCtx
	key, token, gen := c.key, c.token, c.gen
	c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamFetch, Msg: token})

	return func() tea.Msg {
		start := time.Now()
		batch, err := gw.Fetch(ctx, key, token)
		return BatchLoaded{ctrl: c, gen: gen, Token: token, Batch: batch, Err: err, Dur: time.Since(start)}
	}
}

// accept runs the batch-acceptance rules for one gateway response.
func (c *Controller) accept(msg BatchLoaded) tea.Cmd {
	if msg.Err != nil {
		// Failed is transient: the token is untouched so the next trigger retries.
		c.state = Failed
		c.emit(otel.Event{Level: otel.LevelError, Kind: otel.KindStreamError, Err: msg.Err.Error(), Dur: msg.Dur})
		c.consumer.OnError(msg.Err.Error())
		c.state = Idle
		c.setLoading(false)
		return nil
	}

	batch := msg.Batch
	if len(batch.Items) == 0 {
		c.exhaust()
		return nil
	}

	fresh := c.seen.Fresh(batch.Items)
	c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamBatch, Count: len(fresh), Dur: msg.Dur,
		Extra: map[string]any{"received": len(batch.Items)}})

	if len(fresh) == 0 && batch.HasNext {
		c.token = batch.Next
		c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindDuplicatePage, Msg: batch.Next})
		return c.schedule(c.opts.RetryDelay)
	}

	for _, item := range fresh {
		c.seen.Add(item.ID)
	}
	if batch.HasNext {
		c.token = batch.Next
	} else {
		c.token = ""
	}
	c.hasMore = batch.HasNext

	if len(fresh) > 0 {
		c.consumer.OnBatch(fresh)
	}

	if !c.hasMore {
		c.exhaust()
		return nil
	}

	if len(fresh) < c.opts.ThinThreshold {
		c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindThinBatch, Count: len(fresh)})
		return c.schedule(c.opts.ThinDelay)
	}

	c.state = Idle
	c.setLoading(false)
	return nil
}

// schedule keeps the controller Loading and returns a delayed continuation.
// Only the most recently scheduled continuation of the current generation
// is honored.
func (c *Controller) schedule(d time.Duration) tea.Cmd {
	c.seq++
	c.pending = c.seq
	gen, seq := c.gen, c.seq
	return tea.Tick(d, func(time.Time) tea.Msg {
		return ContinueTick{ctrl: c, gen: gen, seq: seq}
	})
}

func (c *Controller) exhaust() {
	c.hasMore = false
	c.state = Exhausted
	c.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamExhausted, Count: c.seen.Len()})
	c.setLoading(false)
	c.consumer.OnExhausted()
}

func (c *Controller) setLoading(v bool) {
	if c.loading == v {
		return
	}
	c.loading = v
	c.consumer.OnLoadingChanged(v)
}

func (c *Controller) emit(ev otel.Event) {
	if c.opts.Events == nil {
		return
	}
	ev.Comp = "feed"
	ev.Source = c.key.String()
	c.opts.Events.Emit(ev)
}
