package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// response is one scripted gateway reply.
type response struct {
	batch Batch
	err   error
}

// fakeGateway replays scripted responses in order and records the token of
// every call. Once the script runs out it returns an empty batch.
type fakeGateway struct {
	responses []response
	tokens    []string
	keys      []StreamKey
}

func (g *fakeGateway) Fetch(ctx context.Context, key StreamKey, token string) (Batch, error) {
	g.tokens = append(g.tokens, token)
	g.keys = append(g.keys, key)
	i := len(g.tokens) - 1
	if i >= len(g.responses) {
		return Batch{}, nil
	}
	return g.responses[i].batch, g.responses[i].err
}

func page(next string, ids ...int64) response {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: IntID(id), Title: fmt.Sprintf("Article %d", id)}
	}
	return response{batch: Batch{Items: items, Next: next, HasNext: next != ""}}
}

func failure(err error) response {
	return response{err: err}
}

var testKey = StreamKey{Category: "Science", Subcategory: "Physics"}

func newTestController(gw Gateway, consumer Consumer) *Controller {
	return NewController(context.Background(), testKey, gw, consumer, Options{
		RetryDelay: time.Millisecond,
		ThinDelay:  time.Millisecond,
	})
}

// step runs cmd and feeds its message back, returning the follow-up command.
func step(t *testing.T, c *Controller, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command, got nil")
	}
	return c.Update(cmd())
}

func itemIDs(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID.String()
	}
	return out
}

func TestScenarioFirstBatch(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1, 2)}}
	col := &Collector{}
	c := newTestController(gw, col)

	step(t, c, c.Reset())

	if len(col.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(col.Batches))
	}
	if got := itemIDs(col.Batches[0]); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("batch = %v, want [1 2]", got)
	}
	if c.Seen() != 2 || !c.seen.Contains(IntID(1)) || !c.seen.Contains(IntID(2)) {
		t.Errorf("seen set should be {1,2}, has %d entries", c.Seen())
	}
	if c.Token() != "t1" {
		t.Errorf("token = %q, want t1", c.Token())
	}
	if gw.tokens[0] != "" {
		t.Errorf("first request should carry no token, got %q", gw.tokens[0])
	}
}

func TestScenarioFiltersSeen(t *testing.T) {
	gw := &fakeGateway{responses: []response{
		page("t1", 1, 2),
		page("t2", 1, 2, 3),
	}}
	col := &Collector{}
	c := newTestController(gw, col)

	// Two fresh items is a thin batch, so the follow-up comes on its own.
	tick := step(t, c, c.Reset())
	fetch := step(t, c, tick)
	step(t, c, fetch)

	if len(col.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(col.Batches))
	}
	if got := itemIDs(col.Batches[1]); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("second batch = %v, want [3]", got)
	}
	if c.Seen() != 3 {
		t.Errorf("seen = %d, want 3", c.Seen())
	}
	if gw.tokens[1] != "t1" {
		t.Errorf("second request token = %q, want t1", gw.tokens[1])
	}
}

func TestScenarioEmptyBatchExhausts(t *testing.T) {
	gw := &fakeGateway{responses: []response{{batch: Batch{}}}}
	col := &Collector{}
	c := newTestController(gw, col)

	if cmd := step(t, c, c.Reset()); cmd != nil {
		t.Error("exhaustion should not schedule anything")
	}
	if !col.Exhausted {
		t.Error("consumer should be told the stream is exhausted")
	}
	if c.State() != Exhausted {
		t.Errorf("state = %v, want exhausted", c.State())
	}
	if cmd := c.OnTrigger(); cmd != nil {
		t.Error("trigger after exhaustion should be a no-op")
	}
	if len(gw.tokens) != 1 {
		t.Errorf("expected 1 gateway call, got %d", len(gw.tokens))
	}
}

func TestZeroItemsWithTokenIsExhaustion(t *testing.T) {
	gw := &fakeGateway{responses: []response{{batch: Batch{Next: "t9", HasNext: true}}}}
	col := &Collector{}
	c := newTestController(gw, col)

	step(t, c, c.Reset())

	if c.State() != Exhausted || !col.Exhausted {
		t.Errorf("empty page with a token should exhaust, state=%v", c.State())
	}
	if c.HasMore() {
		t.Error("HasMore should be false after exhaustion")
	}
}

func TestScenarioAllDuplicatePageRetries(t *testing.T) {
	gw := &fakeGateway{responses: []response{
		page("t1", 1, 2, 3, 4, 5),
		page("t3", 1),
		page("t4", 6, 7, 8, 9, 10),
	}}
	col := &Collector{}
	c := newTestController(gw, col)

	if cmd := step(t, c, c.Reset()); cmd != nil {
		t.Fatal("a full batch should not schedule a follow-up")
	}

	retry := step(t, c, c.OnTrigger())
	if retry == nil {
		t.Fatal("an all-duplicate page with a token should schedule a retry")
	}
	if len(col.Batches) != 1 {
		t.Errorf("duplicate page must not be emitted, got %d batches", len(col.Batches))
	}
	if c.Token() != "t3" {
		t.Errorf("token = %q, want t3", c.Token())
	}
	if c.State() != Loading {
		t.Errorf("state = %v, want loading while the retry is pending", c.State())
	}
	if cmd := c.OnTrigger(); cmd != nil {
		t.Error("trigger during a pending retry should be dropped")
	}

	fetch := step(t, c, retry)
	step(t, c, fetch)
	if len(gw.tokens) != 3 || gw.tokens[2] != "t3" {
		t.Fatalf("retry should request with t3, calls=%v", gw.tokens)
	}
	if len(col.Batches) != 2 {
		t.Errorf("expected the retry's fresh items to be emitted, got %d batches", len(col.Batches))
	}
}

func TestScenarioGatewayErrorRecovers(t *testing.T) {
	gw := &fakeGateway{responses: []response{
		page("t1", 1, 2, 3, 4, 5),
		failure(errors.New("connection reset")),
		page("t2", 6, 7, 8, 9, 10),
	}}
	col := &Collector{}
	c := newTestController(gw, col)

	step(t, c, c.Reset())
	if cmd := step(t, c, c.OnTrigger()); cmd != nil {
		t.Error("a failed fetch should not schedule anything")
	}

	if len(col.Errors) != 1 || col.Errors[0] != "connection reset" {
		t.Errorf("errors = %v", col.Errors)
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle after failure", c.State())
	}
	if col.Loading {
		t.Error("loading indicator should be off after failure")
	}
	if c.Token() != "t1" {
		t.Errorf("token should be unchanged on failure, got %q", c.Token())
	}

	step(t, c, c.OnTrigger())
	if gw.tokens[2] != "t1" {
		t.Errorf("retry after failure should reuse t1, got %q", gw.tokens[2])
	}
	if len(col.Items) != 10 {
		t.Errorf("expected 10 items after recovery, got %d", len(col.Items))
	}
}

func TestTriggersWhileLoadingAreDropped(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1, 2, 3, 4, 5)}}
	c := newTestController(gw, &Collector{})

	fetch := c.Reset()
	for i := 0; i < 10; i++ {
		if cmd := c.OnTrigger(); cmd != nil {
			t.Fatalf("trigger %d while loading returned a command", i)
		}
	}
	if len(gw.tokens) != 0 {
		t.Fatalf("gateway called %d times before the fetch ran", len(gw.tokens))
	}

	step(t, c, fetch)
	if len(gw.tokens) != 1 {
		t.Errorf("expected exactly 1 gateway call, got %d", len(gw.tokens))
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestThinBatchThreshold(t *testing.T) {
	tests := []struct {
		name       string
		first      response
		wantFollow bool
	}{
		{"three fresh items", page("t1", 1, 2, 3), true},
		{"five fresh items", page("t1", 1, 2, 3, 4, 5), false},
		{"thin but last page", page("", 1, 2, 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{responses: []response{tt.first, page("t2", 10, 11, 12, 13, 14)}}
			c := newTestController(gw, &Collector{})

			follow := step(t, c, c.Reset())
			if (follow != nil) != tt.wantFollow {
				t.Fatalf("follow-up scheduled = %v, want %v", follow != nil, tt.wantFollow)
			}
			if !tt.wantFollow {
				return
			}

			fetch := step(t, c, follow)
			if fetch == nil {
				t.Fatal("continuation should issue a fetch")
			}
			if next := step(t, c, fetch); next != nil {
				t.Error("a full second page should not schedule another follow-up")
			}
			if len(gw.tokens) != 2 {
				t.Errorf("expected exactly one automatic follow-up request, got %d calls", len(gw.tokens))
			}
		})
	}
}

func TestDuplicateRetryTerminates(t *testing.T) {
	responses := []response{page("t0", 1, 2, 3, 4, 5)}
	for i := 1; i <= 20; i++ {
		responses = append(responses, page(fmt.Sprintf("t%d", i), 1, 2, 3))
	}
	responses = append(responses, page("", 42))

	gw := &fakeGateway{responses: responses}
	col := &Collector{}
	c := newTestController(gw, col)

	ctx := context.Background()
	if err := Drive(ctx, c, c.Reset(), nil); err != nil {
		t.Fatal(err)
	}
	if err := Drive(ctx, c, c.OnTrigger(), nil); err != nil {
		t.Fatal(err)
	}

	if len(col.Batches) != 2 {
		t.Fatalf("expected exactly one emission after the duplicate run, got %d batches", len(col.Batches)-1)
	}
	if got := itemIDs(col.Batches[1]); !reflect.DeepEqual(got, []string{"42"}) {
		t.Errorf("final batch = %v, want [42]", got)
	}
	if !col.Exhausted {
		t.Error("absent token after the last page should exhaust the stream")
	}
	if len(gw.tokens) != len(responses) {
		t.Errorf("gateway calls = %d, want %d", len(gw.tokens), len(responses))
	}
}

func TestNoDuplicateEmissionAcrossStream(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var responses []response
	for i := 0; i < 30; i++ {
		ids := make([]int64, 10)
		for j := range ids {
			ids[j] = rng.Int63n(60)
		}
		responses = append(responses, page(fmt.Sprintf("t%d", i+1), ids...))
	}
	responses = append(responses, page("", 1, 2, 3))

	gw := &fakeGateway{responses: responses}
	col := &Collector{}
	c := newTestController(gw, col)

	ctx := context.Background()
	cmd := c.Reset()
	for cmd != nil {
		if err := Drive(ctx, c, cmd, nil); err != nil {
			t.Fatal(err)
		}
		cmd = c.OnTrigger()
	}

	seen := make(map[ItemID]bool)
	for _, item := range col.Items {
		if seen[item.ID] {
			t.Fatalf("item %s emitted twice", item.ID)
		}
		seen[item.ID] = true
	}
	if c.Seen() != len(col.Items) {
		t.Errorf("seen set has %d ids, emitted %d items", c.Seen(), len(col.Items))
	}
	if !col.Exhausted {
		t.Error("stream should end exhausted")
	}
}

func TestBatchOrderPreserved(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 9, 3, 7, 1, 5, 3, 8)}}
	col := &Collector{}
	c := newTestController(gw, col)

	step(t, c, c.Reset())

	want := []string{"9", "3", "7", "1", "5", "8"}
	if got := itemIDs(col.Batches[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestResetCancelsPendingContinuation(t *testing.T) {
	gw := &fakeGateway{responses: []response{
		page("t1", 1, 2),
		page("t1", 1, 2, 3, 4, 5),
	}}
	col := &Collector{}
	c := newTestController(gw, col)

	staleTick := step(t, c, c.Reset())
	if staleTick == nil {
		t.Fatal("thin batch should schedule a continuation")
	}

	fetch := c.Reset()
	if c.Seen() != 0 || c.Token() != "" {
		t.Fatalf("reset should clear seen ids and token, seen=%d token=%q", c.Seen(), c.Token())
	}

	if cmd := c.Update(staleTick()); cmd != nil {
		t.Error("a continuation from before the reset must be ignored")
	}
	step(t, c, fetch)

	if len(gw.tokens) != 2 {
		t.Errorf("expected 2 gateway calls, got %d", len(gw.tokens))
	}
	if got := itemIDs(col.Batches[len(col.Batches)-1]); len(got) != 5 {
		t.Errorf("after reset previously seen ids should be fresh again, got %v", got)
	}
}

func TestCloseIgnoresLateResponse(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1, 2, 3, 4, 5)}}
	col := &Collector{}
	c := newTestController(gw, col)

	fetch := c.Reset()
	c.Close()

	if cmd := c.Update(fetch()); cmd != nil {
		t.Error("closed controller should ignore responses")
	}
	if len(col.Batches) != 0 {
		t.Error("closed controller must not emit")
	}
	if cmd := c.OnTrigger(); cmd != nil {
		t.Error("closed controller should ignore triggers")
	}
	if err := Drive(context.Background(), c, nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Drive on closed controller = %v, want ErrClosed", err)
	}
}

func TestForeignMessagesIgnored(t *testing.T) {
	gwA := &fakeGateway{responses: []response{page("a1", 1, 2, 3, 4, 5)}}
	gwB := &fakeGateway{responses: []response{page("b1", 6, 7, 8, 9, 10)}}
	colA, colB := &Collector{}, &Collector{}
	a := newTestController(gwA, colA)
	b := newTestController(gwB, colB)

	fetchA := a.Reset()
	b.Reset()

	msg := fetchA()
	if b.Owns(msg) {
		t.Error("b should not own a's message")
	}
	if cmd := b.Update(msg); cmd != nil || len(colB.Batches) != 0 {
		t.Error("b must ignore a's response")
	}
	a.Update(msg)
	if len(colA.Batches) != 1 {
		t.Error("a should accept its own response")
	}
}

func TestLoadingNotifications(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1), page("t2", 2, 3, 4, 5, 6)}}
	col := &Collector{}
	c := newTestController(gw, col)

	if err := Drive(context.Background(), c, c.Reset(), nil); err != nil {
		t.Fatal(err)
	}

	// On at the first fetch, off once the thin follow-up settles.
	if col.LoadingChanges != 2 {
		t.Errorf("loading changes = %d, want 2", col.LoadingChanges)
	}
	if col.Loading {
		t.Error("loading should end false")
	}
}

func TestDriveStop(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1), page("t2", 2), page("t3", 3)}}
	col := &Collector{}
	c := newTestController(gw, col)

	err := Drive(context.Background(), c, c.Reset(), func() bool { return len(col.Items) >= 2 })
	if err != nil {
		t.Fatal(err)
	}
	if len(col.Items) != 2 {
		t.Errorf("items = %d, want 2", len(col.Items))
	}
}

func TestDriveCancelDuringThinDelay(t *testing.T) {
	gw := &fakeGateway{responses: []response{page("t1", 1), page("t2", 2)}}
	col := &Collector{}
	c := NewController(context.Background(), testKey, gw, col, Options{
		RetryDelay: time.Millisecond,
		ThinDelay:  time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- Drive(ctx, c, c.Reset(), nil) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drive did not return after cancel while a continuation was pending")
	}
	if len(col.Items) != 1 {
		t.Errorf("items = %d, want 1", len(col.Items))
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.ThinThreshold != 5 || o.RetryDelay != 500*time.Millisecond || o.ThinDelay != time.Second {
		t.Errorf("unexpected defaults: %+v", o)
	}
}
