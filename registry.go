package wren

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Channel registry
// ============================================================================
//
// The registry guarantees at most one live connection per key. Every
// method on it runs on the session loop; dials and reads happen on
// their own goroutines and report back by posting closures. Each dial
// is tagged with an attempt id so that results from a superseded dial
// or a stale reader are recognized and dropped instead of corrupting
// the current connection.

const sendTimeout = 5 * time.Second

// ChannelRegistry owns the lifecycle of all websocket channels.
type ChannelRegistry struct {
	log   zerolog.Logger
	delay time.Duration

	// post schedules fn on the session loop. deliver hands a decoded
	// event to the session; it is only ever called on-loop.
	post    func(fn func())
	deliver func(key ChannelKey, ev Event)

	ctx      context.Context
	channels map[ChannelKey]*channel
}

func newChannelRegistry(ctx context.Context, log zerolog.Logger, delay time.Duration, post func(func()), deliver func(ChannelKey, Event)) *ChannelRegistry {
	return &ChannelRegistry{
		log:      log,
		delay:    delay,
		post:     post,
		deliver:  deliver,
		ctx:      ctx,
		channels: make(map[ChannelKey]*channel),
	}
}

// Open ensures a connection exists for key. If a channel under this key
// is already connecting or open the call is a no-op; if one is waiting
// to retry, the pending redial keeps its schedule. A finally-closed
// channel has been removed from the map, so reopening the same key
// starts fresh.
func (r *ChannelRegistry) Open(key ChannelKey, endpoint string) {
	if ch, ok := r.channels[key]; ok {
		switch ch.state {
		case StateConnecting, StateOpen, StateClosedRetrying:
			return
		}
	}
	ch := &channel{key: key, endpoint: endpoint, state: StateConnecting}
	r.channels[key] = ch
	r.startDial(ch)
}

// Close tears down the channel for key on purpose. Any pending redial
// is cancelled and the key is forgotten; no reconnect will follow.
func (r *ChannelRegistry) Close(key ChannelKey) {
	ch, ok := r.channels[key]
	if !ok {
		return
	}
	if ch.retry != nil {
		ch.retry.Stop()
		ch.retry = nil
	}
	if ch.conn != nil {
		ch.conn.Close(websocket.StatusNormalClosure, "bye")
		ch.conn = nil
	}
	ch.state = StateClosedFinal
	delete(r.channels, key)
	r.log.Debug().Stringer("channel", key).Msg("channel closed")
}

// CloseConversationsExcept closes every direct and room channel other
// than keep. Activating a conversation calls this so a message can
// never arrive on a channel for a conversation that is no longer on
// screen.
func (r *ChannelRegistry) CloseConversationsExcept(keep ChannelKey) {
	for key := range r.channels {
		if key == keep {
			continue
		}
		if key.Kind == ChannelDirect || key.Kind == ChannelRoom {
			r.Close(key)
		}
	}
}

// CloseAll tears down every channel, typically at logout or shutdown.
func (r *ChannelRegistry) CloseAll() {
	for key := range r.channels {
		r.Close(key)
	}
}

// State reports the lifecycle state for key. Unknown keys report
// StateClosedFinal: a key the registry has forgotten behaves exactly
// like one that was closed on purpose.
func (r *ChannelRegistry) State(key ChannelKey) ChannelState {
	if ch, ok := r.channels[key]; ok {
		return ch.state
	}
	return StateClosedFinal
}

// Send writes one text frame on the channel for key. Channels that are
// not open, including ones mid-reconnect, refuse the write rather than
// queueing it.
func (r *ChannelRegistry) Send(key ChannelKey, payload []byte) error {
	ch, ok := r.channels[key]
	if !ok || ch.state != StateOpen {
		return ErrChannelNotOpen
	}
	ctx, cancel := context.WithTimeout(r.ctx, sendTimeout)
	defer cancel()
	return ch.conn.Write(ctx, websocket.MessageText, payload)
}

// ----------------------------------------------------------------------------
// Dialing and reading
// ----------------------------------------------------------------------------

func (r *ChannelRegistry) startDial(ch *channel) {
	attempt := uuid.NewString()
	ch.attempt = attempt
	ch.state = StateConnecting
	r.log.Debug().Stringer("channel", ch.key).Str("attempt", attempt).Msg("dialing")

	key, endpoint := ch.key, ch.endpoint
	go func() {
		conn, _, err := websocket.Dial(r.ctx, endpoint, nil)
		r.post(func() { r.finishDial(key, attempt, conn, err) })
	}()
}

func (r *ChannelRegistry) finishDial(key ChannelKey, attempt string, conn *websocket.Conn, err error) {
	ch, ok := r.channels[key]
	if !ok || ch.attempt != attempt || ch.state != StateConnecting {
		// Superseded by a close or a newer dial.
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "superseded")
		}
		return
	}
	if err != nil {
		r.log.Warn().Stringer("channel", key).Err(err).Msg("dial failed")
		r.scheduleRetry(ch)
		return
	}
	conn.SetReadLimit(1 << 20)
	ch.conn = conn
	ch.state = StateOpen
	r.log.Debug().Stringer("channel", key).Msg("channel open")
	go r.readLoop(key, attempt, conn)
}

// readLoop decodes frames at the boundary and posts them to the loop.
// Frames that fail to decode are logged and dropped; the connection
// stays up.
func (r *ChannelRegistry) readLoop(key ChannelKey, attempt string, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(r.ctx)
		if err != nil {
			r.post(func() { r.handleClosed(key, attempt) })
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		ev, err := decodeFrame(key, data)
		if err != nil {
			r.log.Warn().Stringer("channel", key).Err(err).Msg("dropping undecodable frame")
			continue
		}
		r.post(func() { r.dispatch(key, attempt, ev) })
	}
}

func (r *ChannelRegistry) dispatch(key ChannelKey, attempt string, ev Event) {
	ch, ok := r.channels[key]
	if !ok || ch.attempt != attempt {
		return
	}
	r.deliver(key, ev)
}

// handleClosed runs when a reader observes the connection drop without
// a prior Close. The channel enters the retrying state and exactly one
// redial is scheduled after the fixed delay.
func (r *ChannelRegistry) handleClosed(key ChannelKey, attempt string) {
	ch, ok := r.channels[key]
	if !ok || ch.attempt != attempt || ch.state != StateOpen {
		return
	}
	ch.conn = nil
	r.log.Warn().Stringer("channel", key).Msg("channel lost, will retry")
	r.scheduleRetry(ch)
}

// scheduleRetry arms the single reconnect timer for ch. The delay is
// fixed: immediate redials would hammer a restarting backend, and a
// growing backoff would keep a chat client offline longer than anyone
// wants. One to one and a half seconds rides out restarts without
// either failure mode.
func (r *ChannelRegistry) scheduleRetry(ch *channel) {
	ch.state = StateClosedRetrying
	key, attempt := ch.key, ch.attempt
	ch.retry = time.AfterFunc(r.delay, func() {
		r.post(func() { r.redial(key, attempt) })
	})
}

func (r *ChannelRegistry) redial(key ChannelKey, attempt string) {
	ch, ok := r.channels[key]
	if !ok || ch.attempt != attempt || ch.state != StateClosedRetrying {
		return
	}
	ch.retry = nil
	r.startDial(ch)
}
