package wren

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// loopHarness stands in for the session dispatcher: one goroutine
// executing posted closures in order.
type loopHarness struct {
	events chan func()
	quit   chan struct{}
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	h := &loopHarness{events: make(chan func(), 64), quit: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-h.events:
				fn()
			case <-h.quit:
				return
			}
		}
	}()
	t.Cleanup(func() { close(h.quit) })
	return h
}

func (h *loopHarness) post(fn func()) {
	select {
	case h.events <- fn:
	case <-h.quit:
	}
}

func (h *loopHarness) call(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	h.post(func() { fn(); close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop call timed out")
	}
}

func newWSServer(t *testing.T, handler func(c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		handler(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestRegistry(t *testing.T, h *loopHarness, delay time.Duration) (*ChannelRegistry, chan Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	delivered := make(chan Event, 64)
	r := newChannelRegistry(ctx, zerolog.Nop(), delay, h.post, func(_ ChannelKey, ev Event) {
		delivered <- ev
	})
	return r, delivered
}

func waitForState(t *testing.T, h *loopHarness, r *ChannelRegistry, key ChannelKey, want ChannelState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var got ChannelState
		h.call(t, func() { got = r.State(key) })
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %v never reached %v", key, want)
}

func TestRegistryOpenAndDeliver(t *testing.T) {
	h := newLoopHarness(t)
	r, delivered := newTestRegistry(t, h, 30*time.Millisecond)
	url := newWSServer(t, func(c *websocket.Conn) {
		ctx := context.Background()
		c.Write(ctx, websocket.MessageText, []byte(`{"user":"bob","text":"hi","time":"12:01"}`))
		c.Read(ctx) // hold open until the client goes away
	})

	key := ChannelKey{Kind: ChannelDirect, ID: "u2"}
	h.call(t, func() { r.Open(key, url) })
	waitForState(t, h, r, key, StateOpen)

	select {
	case ev := <-delivered:
		cm, ok := ev.(ChatMessage)
		if !ok {
			t.Fatalf("expected ChatMessage, got %T", ev)
		}
		if cm.Msg.Text != "hi" || cm.Msg.Conv != DirectKey("u2") {
			t.Fatalf("unexpected message: %+v", cm.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestRegistryOpenIsIdempotent(t *testing.T) {
	h := newLoopHarness(t)
	r, _ := newTestRegistry(t, h, 30*time.Millisecond)
	var accepts atomic.Int32
	url := newWSServer(t, func(c *websocket.Conn) {
		accepts.Add(1)
		c.Read(context.Background())
	})

	key := ChannelKey{Kind: ChannelDirect, ID: "u2"}
	h.call(t, func() {
		r.Open(key, url)
		r.Open(key, url) // no-op while connecting
	})
	waitForState(t, h, r, key, StateOpen)
	h.call(t, func() { r.Open(key, url) }) // no-op while open

	time.Sleep(100 * time.Millisecond)
	if n := accepts.Load(); n != 1 {
		t.Fatalf("expected exactly one connection, got %d", n)
	}
}

func TestRegistryReconnects(t *testing.T) {
	h := newLoopHarness(t)
	r, _ := newTestRegistry(t, h, 30*time.Millisecond)
	var accepts atomic.Int32
	url := newWSServer(t, func(c *websocket.Conn) {
		if accepts.Add(1) == 1 {
			// First connection dies at once; the client must come back.
			c.Close(websocket.StatusInternalError, "boom")
			return
		}
		c.Read(context.Background())
	})

	key := ChannelKey{Kind: ChannelGlobal}
	h.call(t, func() { r.Open(key, url) })

	deadline := time.Now().Add(2 * time.Second)
	for accepts.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if accepts.Load() < 2 {
		t.Fatal("no reconnect attempt observed")
	}
	waitForState(t, h, r, key, StateOpen)
}

func TestRegistryRetryTimerIsSingular(t *testing.T) {
	h := newLoopHarness(t)
	delay := 60 * time.Millisecond
	r, _ := newTestRegistry(t, h, delay)
	var accepts atomic.Int32
	url := newWSServer(t, func(c *websocket.Conn) {
		// Every connection dies at once, so the channel cycles through
		// open -> retrying over and over.
		accepts.Add(1)
		c.Close(websocket.StatusInternalError, "boom")
	})

	key := ChannelKey{Kind: ChannelGlobal}
	h.call(t, func() { r.Open(key, url) })

	windows := 5
	time.Sleep(time.Duration(windows) * delay)

	// With a single timer per key, each delay window produces at most
	// one redial. More attempts than windows means timers stacked up.
	got := accepts.Load()
	if got < 2 {
		t.Fatalf("expected repeated reconnect attempts, got %d", got)
	}
	if max := int32(windows + 2); got > max {
		t.Fatalf("%d dial attempts in %d delay windows: more than one pending retry timer", got, windows)
	}
}

func TestRegistryCloseCancelsRetry(t *testing.T) {
	h := newLoopHarness(t)
	delay := 50 * time.Millisecond
	r, _ := newTestRegistry(t, h, delay)
	var accepts atomic.Int32
	url := newWSServer(t, func(c *websocket.Conn) {
		accepts.Add(1)
		c.Close(websocket.StatusInternalError, "boom")
	})

	key := ChannelKey{Kind: ChannelDirect, ID: "u2"}
	h.call(t, func() { r.Open(key, url) })
	waitForState(t, h, r, key, StateClosedRetrying)

	h.call(t, func() { r.Close(key) })
	seen := accepts.Load()

	time.Sleep(4 * delay)
	if got := accepts.Load(); got != seen {
		t.Fatalf("closed channel reconnected: %d -> %d connections", seen, got)
	}
	var state ChannelState
	h.call(t, func() { state = r.State(key) })
	if state != StateClosedFinal {
		t.Fatalf("expected final state, got %v", state)
	}
}

func TestRegistrySend(t *testing.T) {
	h := newLoopHarness(t)
	r, delivered := newTestRegistry(t, h, 30*time.Millisecond)
	url := newWSServer(t, func(c *websocket.Conn) {
		ctx := context.Background()
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if string(data) == "ping?" {
			c.Write(ctx, websocket.MessageText, []byte(`{"user":"bob","text":"pong!","time":"12:01"}`))
		}
		c.Read(ctx)
	})

	key := ChannelKey{Kind: ChannelDirect, ID: "u2"}

	t.Run("refused before open", func(t *testing.T) {
		var err error
		h.call(t, func() { err = r.Send(key, []byte("early")) })
		if !errors.Is(err, ErrChannelNotOpen) {
			t.Fatalf("expected ErrChannelNotOpen, got %v", err)
		}
	})

	t.Run("round trip once open", func(t *testing.T) {
		h.call(t, func() { r.Open(key, url) })
		waitForState(t, h, r, key, StateOpen)

		var err error
		h.call(t, func() { err = r.Send(key, []byte("ping?")) })
		if err != nil {
			t.Fatalf("Send: %v", err)
		}

		select {
		case ev := <-delivered:
			if cm, ok := ev.(ChatMessage); !ok || cm.Msg.Text != "pong!" {
				t.Fatalf("unexpected reply: %#v", ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no reply delivered")
		}
	})

	t.Run("refused after close", func(t *testing.T) {
		h.call(t, func() { r.Close(key) })
		var err error
		h.call(t, func() { err = r.Send(key, []byte("late")) })
		if !errors.Is(err, ErrChannelNotOpen) {
			t.Fatalf("expected ErrChannelNotOpen, got %v", err)
		}
	})
}
