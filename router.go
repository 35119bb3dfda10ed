package wren

import "github.com/rs/zerolog"

// ============================================================================
// Conversation router
// ============================================================================

// DisplaySink receives everything the session wants rendered. The TUI
// implements it; tests implement it with a recorder. Calls arrive on
// the session loop, so implementations must hand off rather than block.
type DisplaySink interface {
	ShowMessage(msg Message)
	ShowHistory(conv ConvKey, msgs []Message)
	RosterChanged(users []User)
	RoomsChanged(rooms []Room)
	UnreadChanged(counts map[ConvKey]int)
}

// Notifier surfaces out-of-conversation message alerts.
type Notifier interface {
	Notify(from, text string)
}

// nopDisplay and nopNotifier keep the router total when the embedder
// wires no UI.
type nopDisplay struct{}

func (nopDisplay) ShowMessage(Message)               {}
func (nopDisplay) ShowHistory(ConvKey, []Message)    {}
func (nopDisplay) RosterChanged([]User)              {}
func (nopDisplay) RoomsChanged([]Room)               {}
func (nopDisplay) UnreadChanged(map[ConvKey]int)     {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

// ConversationRouter decides, for every inbound message, whether it is
// displayed immediately or banked as unread. It runs entirely on the
// session loop.
type ConversationRouter struct {
	log      zerolog.Logger
	selfID   string
	selfName string

	ledger  *UnreadLedger
	active  *ActiveContext
	roster  *RosterMirror
	display DisplaySink
	notify  Notifier

	// markRead asks the backend to clear unread state for conv. The
	// session runs it off-loop; a failure must never take the already
	// displayed message back.
	markRead func(conv ConvKey)
}

// HandleInbound routes one chat message from a direct or room channel.
func (cr *ConversationRouter) HandleInbound(msg Message) {
	if msg.Conv.Kind == ConvDirect && msg.SenderID == "" {
		// Direct frames carry the sender's display name only.
		if u, ok := cr.roster.ByName(msg.Sender); ok {
			msg.SenderID = u.ID
		}
	}

	if cr.isSelf(msg) {
		// Our own message echoed back by the server. With a conversation
		// on screen it renders like any other; with nothing focused there
		// is nowhere to put it and nothing to count.
		if _, ok := cr.active.Conv(); ok {
			cr.display.ShowMessage(msg)
		} else {
			cr.log.Debug().Stringer("conv", msg.Conv).Msg("dropping self echo with no focus")
		}
		return
	}

	if cr.active.IsActive(msg.Conv) {
		cr.display.ShowMessage(msg)
		cr.markRead(msg.Conv)
		return
	}

	cr.ledger.Increment(msg.Conv)
	cr.display.UnreadChanged(cr.ledger.Snapshot())
	cr.notify.Notify(msg.Sender, msg.Text)
}

// HandleNotify routes a global-channel announcement for a direct
// message. If that conversation is on screen its own channel already
// delivered the message, so the announcement is dropped to avoid
// counting it twice.
func (cr *ConversationRouter) HandleNotify(ev NotifyEvent) {
	conv := DirectKey(ev.FromID)
	if cr.active.IsActive(conv) {
		return
	}
	cr.ledger.Increment(conv)
	cr.display.UnreadChanged(cr.ledger.Snapshot())
	cr.notify.Notify(ev.FromName, ev.Text)
}

// HandleUnreadReset zeroes a direct conversation's count on the
// server's say-so, typically an echo of our own mark-read issued from
// another device.
func (cr *ConversationRouter) HandleUnreadReset(ev UnreadResetEvent) {
	cr.ledger.Reset(DirectKey(ev.FromID))
	cr.display.UnreadChanged(cr.ledger.Snapshot())
}

func (cr *ConversationRouter) isSelf(msg Message) bool {
	if msg.SenderID != "" {
		return msg.SenderID == cr.selfID
	}
	return msg.Sender == cr.selfName
}
