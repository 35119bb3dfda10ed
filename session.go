package wren

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Session
// ============================================================================
//
// Session is the synchronization engine: one dispatcher goroutine owns
// every piece of mutable state (registry, ledger, roster, active
// context) and processes posted closures in order. Reader goroutines,
// timers, and REST fetches all report back by posting; public methods
// post and wait. Nothing outside the dispatcher touches state, so none
// of it is locked.

var (
	// ErrChannelNotOpen is returned when a write is attempted on a
	// channel that is not currently open. Writes are refused rather
	// than queued across reconnects.
	ErrChannelNotOpen = errors.New("wren: channel not open")

	// ErrNotConnected is returned by session operations after the
	// session has stopped, or before it has an identity.
	ErrNotConnected = errors.New("wren: not connected")

	// ErrNoActiveConversation is returned by operations that require a
	// focused conversation when none is focused.
	ErrNoActiveConversation = errors.New("wren: no active conversation")
)

const (
	defaultReconnectDelay    = 1500 * time.Millisecond
	defaultReconcilePeriod   = 10 * time.Second
	defaultRoomRefreshPeriod = 30 * time.Second
	identityRetryDelay       = time.Second
)

// IdentityProvider yields the session's credentials once they are
// known. Returning false defers anything that needs an identity, and
// the session asks again shortly.
type IdentityProvider func() (Credentials, bool)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDisplay wires the sink that renders messages, roster and unread
// state.
func WithDisplay(d DisplaySink) SessionOption {
	return func(s *Session) { s.display = d }
}

// WithNotifier wires the out-of-conversation alert collaborator.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithSessionLogger overrides the logger inherited from the REST client.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithIdentity fixes the session identity up front.
func WithIdentity(creds Credentials) SessionOption {
	return func(s *Session) {
		s.identity = func() (Credentials, bool) { return creds, true }
	}
}

// WithIdentityProvider defers identity resolution to the caller, for
// embedders whose login completes after the session starts.
func WithIdentityProvider(p IdentityProvider) SessionOption {
	return func(s *Session) { s.identity = p }
}

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.reconnectDelay = d }
}

// WithReconcilePeriod overrides the unread reconciliation poll period.
func WithReconcilePeriod(d time.Duration) SessionOption {
	return func(s *Session) { s.reconcilePeriod = d }
}

// WithRoomRefreshPeriod overrides the room list refresh period.
func WithRoomRefreshPeriod(d time.Duration) SessionOption {
	return func(s *Session) { s.roomRefreshPeriod = d }
}

// Session drives the live side of a Wren client.
type Session struct {
	api      *Client
	log      zerolog.Logger
	display  DisplaySink
	notifier Notifier
	identity IdentityProvider

	reconnectDelay    time.Duration
	reconcilePeriod   time.Duration
	roomRefreshPeriod time.Duration

	events chan func()
	done   chan struct{}

	// Loop-owned state below. Only the dispatcher goroutine touches it.
	self     Credentials
	haveSelf bool
	registry *ChannelRegistry
	ledger   *UnreadLedger
	roster   *RosterMirror
	active   *ActiveContext
	router   *ConversationRouter
}

// NewSession builds a session around an API client. Run must be called
// before any other method does useful work.
func NewSession(api *Client, opts ...SessionOption) *Session {
	s := &Session{
		api:               api,
		log:               api.log,
		display:           nopDisplay{},
		notifier:          nopNotifier{},
		identity:          func() (Credentials, bool) { return Credentials{}, false },
		reconnectDelay:    defaultReconnectDelay,
		reconcilePeriod:   defaultReconcilePeriod,
		roomRefreshPeriod: defaultRoomRefreshPeriod,
		events:            make(chan func(), 256),
		done:              make(chan struct{}),
		ledger:            NewUnreadLedger(),
		roster:            NewRosterMirror(),
		active:            NewActiveContext(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = &ConversationRouter{
		log:      s.log,
		ledger:   s.ledger,
		active:   s.active,
		roster:   s.roster,
		display:  s.display,
		notify:   s.notifier,
		markRead: s.markReadRemote,
	}
	return s
}

// Run connects and dispatches events until ctx is cancelled. It is the
// single goroutine allowed to mutate session state.
func (s *Session) Run(ctx context.Context) error {
	s.registry = newChannelRegistry(ctx, s.log, s.reconnectDelay, s.post, s.deliver)
	s.registry.Open(ChannelKey{Kind: ChannelPresence}, s.api.WSBase()+"/ws/status")
	s.ensureGlobal()

	reconcile := time.NewTicker(s.reconcilePeriod)
	defer reconcile.Stop()
	roomRefresh := time.NewTicker(s.roomRefreshPeriod)
	defer roomRefresh.Stop()

	for {
		select {
		case <-ctx.Done():
			s.registry.CloseAll()
			close(s.done)
			return ctx.Err()
		case fn := <-s.events:
			fn()
		case <-reconcile.C:
			s.fetchReconcile()
		case <-roomRefresh.C:
			s.fetchRooms()
		}
	}
}

// post schedules fn on the dispatcher. After shutdown it becomes a
// no-op so lingering readers and timers cannot block.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// call runs fn on the dispatcher and waits for its result.
func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	s.post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrNotConnected
	}
}

// ----------------------------------------------------------------------------
// Public operations
// ----------------------------------------------------------------------------

// OpenDirect focuses the direct conversation with peerID: the previous
// conversation channel closes, the peer's channel opens, unread state
// clears optimistically, and history loads in the background.
func (s *Session) OpenDirect(peerID string) error {
	return s.call(func() error { return s.openConversation(DirectKey(peerID)) })
}

// OpenRoom focuses the room with roomID.
func (s *Session) OpenRoom(roomID string) error {
	return s.call(func() error { return s.openConversation(RoomKey(roomID)) })
}

// CloseConversation drops the focus and its channel. Messages for the
// conversation go back to being counted instead of displayed.
func (s *Session) CloseConversation() {
	s.call(func() error {
		if conv, ok := s.active.Conv(); ok {
			s.registry.Close(s.channelKeyFor(conv))
		}
		s.active.Deactivate()
		return nil
	})
}

// Send delivers text to the focused conversation. A pending reply
// reference, if any, rides along and is consumed by the attempt; a
// send that never reaches the wire keeps it staged.
func (s *Session) Send(text string) error {
	return s.call(func() error { return s.send(text) })
}

// SetReplyTo stages msg as the quote for the next room send.
func (s *Session) SetReplyTo(msg Message) error {
	return s.call(func() error {
		return s.active.SetReply(ReplyRef{SenderID: msg.SenderID, Sender: msg.Sender, Text: msg.Text})
	})
}

// ClearReply drops any staged reply.
func (s *Session) ClearReply() {
	s.call(func() error {
		s.active.ClearReply()
		return nil
	})
}

// MarkRead zeroes the unread count for conv locally and tells the
// backend in the background.
func (s *Session) MarkRead(conv ConvKey) {
	s.call(func() error {
		s.ledger.Reset(conv)
		s.display.UnreadChanged(s.ledger.Snapshot())
		s.markReadRemote(conv)
		return nil
	})
}

// Logout tears down every channel and forgets the conversation focus.
func (s *Session) Logout() {
	s.call(func() error {
		s.registry.CloseAll()
		s.active.Deactivate()
		s.haveSelf = false
		return nil
	})
}

// Unread returns a copy of the current unread counts.
func (s *Session) Unread() map[ConvKey]int {
	var out map[ConvKey]int
	s.call(func() error {
		out = s.ledger.Snapshot()
		return nil
	})
	return out
}

// TotalUnread returns the sum of all unread counts.
func (s *Session) TotalUnread() int {
	var n int
	s.call(func() error {
		n = s.ledger.Total()
		return nil
	})
	return n
}

// Roster returns the latest presence snapshot, self excluded, online
// users first.
func (s *Session) Roster() []User {
	var out []User
	s.call(func() error {
		out = s.roster.Ordered(s.self.UserID)
		return nil
	})
	return out
}

// ActiveConv reports the focused conversation, if any.
func (s *Session) ActiveConv() (ConvKey, bool) {
	var conv ConvKey
	var ok bool
	s.call(func() error {
		conv, ok = s.active.Conv()
		return nil
	})
	return conv, ok
}

// ----------------------------------------------------------------------------
// Loop internals
// ----------------------------------------------------------------------------

func (s *Session) openConversation(conv ConvKey) error {
	if !s.haveSelf {
		return ErrNotConnected
	}
	key := s.channelKeyFor(conv)
	s.registry.CloseConversationsExcept(key)
	switch conv.Kind {
	case ConvDirect:
		s.active.ActivateDirect(conv.ID)
	case ConvRoom:
		s.active.ActivateRoom(conv.ID)
	}
	s.registry.Open(key, s.endpoint(key))

	s.ledger.Reset(conv)
	s.display.UnreadChanged(s.ledger.Snapshot())
	s.markReadRemote(conv)
	s.fetchHistory(conv)
	return nil
}

func (s *Session) send(text string) error {
	conv, ok := s.active.Conv()
	if !ok {
		return ErrNoActiveConversation
	}
	key := s.channelKeyFor(conv)
	if conv.Kind == ConvDirect {
		return s.registry.Send(key, []byte(text))
	}

	ref := s.active.TakeReply()
	payload := []byte(text)
	if ref != nil {
		var err error
		payload, err = json.Marshal(roomSendWire{Text: text, ReplyTo: ref})
		if err != nil {
			s.active.PutReply(ref)
			return err
		}
	}
	err := s.registry.Send(key, payload)
	if errors.Is(err, ErrChannelNotOpen) {
		// The attempt never reached the wire; the quote survives for
		// the retry.
		s.active.PutReply(ref)
	}
	return err
}

// deliver fans a decoded event out to the right collaborator. It runs
// on the dispatcher.
func (s *Session) deliver(key ChannelKey, ev Event) {
	switch e := ev.(type) {
	case PresenceSnapshot:
		s.roster.ApplySnapshot(e.Users, s.ledger)
		s.display.RosterChanged(s.roster.Ordered(s.self.UserID))
		s.display.UnreadChanged(s.ledger.Snapshot())
	case NotifyEvent:
		s.router.HandleNotify(e)
	case UnreadResetEvent:
		s.router.HandleUnreadReset(e)
	case PingEvent:
		// Answered in the same turn, before any queued event runs.
		if err := s.registry.Send(key, []byte(`{"type":"pong"}`)); err != nil {
			s.log.Warn().Err(err).Msg("pong failed")
		}
	case ChatMessage:
		s.router.HandleInbound(e.Msg)
	}
}

// ensureGlobal opens the global channel once an identity exists,
// retrying on a short fixed timer until it does.
func (s *Session) ensureGlobal() {
	creds, ok := s.identity()
	if !ok {
		s.log.Debug().Msg("identity unavailable, deferring global channel")
		time.AfterFunc(identityRetryDelay, func() { s.post(s.ensureGlobal) })
		return
	}
	s.self = creds
	s.haveSelf = true
	s.router.selfID = creds.UserID
	s.router.selfName = creds.Username
	key := ChannelKey{Kind: ChannelGlobal}
	s.registry.Open(key, s.endpoint(key))
	s.fetchReconcile()
	s.fetchRooms()
}

func (s *Session) channelKeyFor(conv ConvKey) ChannelKey {
	if conv.Kind == ConvRoom {
		return ChannelKey{Kind: ChannelRoom, ID: conv.ID}
	}
	return ChannelKey{Kind: ChannelDirect, ID: conv.ID}
}

func (s *Session) endpoint(key ChannelKey) string {
	base := s.api.WSBase()
	switch key.Kind {
	case ChannelPresence:
		return base + "/ws/status"
	case ChannelGlobal:
		return base + "/ws/global/" + s.self.UserID
	case ChannelDirect:
		return base + "/ws/" + s.self.UserID + "/" + key.ID
	case ChannelRoom:
		return base + "/ws/room/" + key.ID + "/" + s.self.UserID
	}
	return base
}

// ----------------------------------------------------------------------------
// Background fetches
// ----------------------------------------------------------------------------

// markReadRemote issues the backend mark-read off-loop. The local
// ledger was already zeroed; a failed call is logged and the next
// reconciliation settles it.
func (s *Session) markReadRemote(conv ConvKey) {
	if !s.haveSelf {
		return
	}
	self, api, log := s.self, s.api, s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		var err error
		if conv.Kind == ConvRoom {
			err = api.MarkRoomRead(ctx, conv.ID, self.UserID)
		} else {
			err = api.MarkRead(ctx, self.UserID, conv.ID)
		}
		if err != nil {
			log.Warn().Stringer("conv", conv).Err(err).Msg("mark-read failed")
		}
	}()
}

// fetchReconcile pulls the authoritative unread snapshot and folds it
// into the ledger on the dispatcher.
func (s *Session) fetchReconcile() {
	if !s.haveSelf {
		return
	}
	self, api := s.self, s.api
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		raw, err := api.UnreadSnapshot(ctx, self.UserID)
		if err != nil {
			s.log.Warn().Err(err).Msg("unread snapshot failed")
			return
		}
		snapshot := make(map[ConvKey]int, len(raw))
		for peerID, n := range raw {
			snapshot[DirectKey(peerID)] = n
		}
		s.post(func() {
			s.ledger.Reconcile(snapshot)
			s.display.UnreadChanged(s.ledger.Snapshot())
		})
	}()
}

func (s *Session) fetchRooms() {
	if !s.haveSelf {
		return
	}
	api := s.api
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		rooms, err := api.Rooms(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("room list failed")
			return
		}
		s.post(func() { s.display.RoomsChanged(rooms) })
	}()
}

func (s *Session) fetchHistory(conv ConvKey) {
	self, api := s.self, s.api
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		var msgs []Message
		var err error
		if conv.Kind == ConvRoom {
			msgs, err = api.RoomHistory(ctx, conv.ID)
		} else {
			msgs, err = api.DirectHistory(ctx, self.UserID, conv.ID)
		}
		if err != nil {
			s.log.Warn().Stringer("conv", conv).Err(err).Msg("history fetch failed")
			return
		}
		s.post(func() {
			if s.active.IsActive(conv) {
				s.display.ShowHistory(conv, msgs)
			}
		})
	}()
}
