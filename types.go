package wren

import "fmt"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error response from the Wren backend.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wren: server returned %d: %s", e.Code, e.Message)
}

// User is one entry of the roster. Identity is opaque and server-assigned;
// the whole record is replaced on every presence snapshot, never patched.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// Room is a multi-party conversation known to the backend.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Credentials is the opaque identity handed out by the auth flow. The
// client stores and replays it; it never inspects the user id.
type Credentials struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ============================================================================
// Conversation identity
// ============================================================================

// ConvKind discriminates direct conversations from rooms.
type ConvKind int

const (
	ConvDirect ConvKind = iota
	ConvRoom
)

func (k ConvKind) String() string {
	switch k {
	case ConvDirect:
		return "direct"
	case ConvRoom:
		return "room"
	}
	return "unknown"
}

// ConvKey identifies one conversation: a direct peer or a room. It is
// comparable and used as the map key for unread counts and channel
// identities.
type ConvKey struct {
	Kind ConvKind
	ID   string
}

// DirectKey returns the conversation key for a direct chat with peerID.
func DirectKey(peerID string) ConvKey { return ConvKey{Kind: ConvDirect, ID: peerID} }

// RoomKey returns the conversation key for the room roomID.
func RoomKey(roomID string) ConvKey { return ConvKey{Kind: ConvRoom, ID: roomID} }

func (k ConvKey) String() string { return k.Kind.String() + ":" + k.ID }

// ============================================================================
// Messages
// ============================================================================

// ReplyRef points at the message an outbound room message replies to.
type ReplyRef struct {
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender_name"`
	Text     string `json:"text"`
}

// Message is one chat message as seen by the client. Immutable once
// received; ordering is per-channel arrival order only.
type Message struct {
	SenderID string // empty until resolved through the roster
	Sender   string // display name as carried on the wire
	Text     string
	Time     string // server-formatted timestamp, opaque to the client
	Conv     ConvKey
	ReplyTo  *ReplyRef // room messages only
}

// ============================================================================
// Wire payloads
// ============================================================================

// directWire is the inbound frame on a direct conversation channel.
type directWire struct {
	User string `json:"user"`
	Text string `json:"text"`
	Time string `json:"time"`
}

// roomWire is the inbound frame on a room conversation channel.
type roomWire struct {
	SenderID string    `json:"sender_id"`
	User     string    `json:"user"`
	Text     string    `json:"text"`
	Time     string    `json:"time"`
	RoomID   string    `json:"room_id"`
	ReplyTo  *ReplyRef `json:"reply_to,omitempty"`
}

// roomSendWire is the structured outbound frame for a room reply. Plain
// room sends stay raw text frames.
type roomSendWire struct {
	Text    string    `json:"text"`
	ReplyTo *ReplyRef `json:"reply_to"`
}

// globalWire is the envelope for events pushed on the global-notify
// channel. Only the fields relevant to the decoded Type are set.
type globalWire struct {
	Type     string `json:"type"`
	FromID   string `json:"from_id,omitempty"`
	FromName string `json:"from_name,omitempty"`
	Text     string `json:"text,omitempty"`
	Time     string `json:"time,omitempty"`
}
