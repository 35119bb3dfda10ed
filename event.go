package wren

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Inbound events
// ============================================================================
//
// Every frame read off a channel is decoded into one of the variants below
// before it reaches the session loop. The router never sees raw bytes;
// frames that fail to decode are logged and discarded at the boundary.

// Event is one decoded inbound item posted to the session loop.
type Event interface {
	isEvent()
}

// PresenceSnapshot is the full roster pushed on the presence channel.
type PresenceSnapshot struct {
	Users []User
}

// NotifyEvent announces a message for a conversation the client may not
// have a live channel for. It drives unread bookkeeping, never display.
type NotifyEvent struct {
	FromID   string
	FromName string
	Text     string
	Time     string
}

// UnreadResetEvent tells the client the backend has marked a direct
// conversation read (possibly on our own behalf, echoed back).
type UnreadResetEvent struct {
	FromID string
}

// PingEvent is the server liveness probe on the global channel. It must
// be answered with a pong before the loop takes further input.
type PingEvent struct{}

// ChatMessage is an inbound message on a direct or room channel.
type ChatMessage struct {
	Msg Message
}

func (PresenceSnapshot) isEvent()  {}
func (NotifyEvent) isEvent()       {}
func (UnreadResetEvent) isEvent()  {}
func (PingEvent) isEvent()         {}
func (ChatMessage) isEvent()       {}

// ============================================================================
// Boundary decoding
// ============================================================================

// decodeFrame turns one wire frame into a typed event. The channel key
// selects the expected shape: payloads vary per channel class and are
// never sniffed.
func decodeFrame(key ChannelKey, data []byte) (Event, error) {
	switch key.Kind {
	case ChannelPresence:
		var users []User
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, fmt.Errorf("presence snapshot: %w", err)
		}
		return PresenceSnapshot{Users: users}, nil

	case ChannelGlobal:
		var env globalWire
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("global event: %w", err)
		}
		switch env.Type {
		case "notify":
			return NotifyEvent{FromID: env.FromID, FromName: env.FromName, Text: env.Text, Time: env.Time}, nil
		case "unread_reset":
			return UnreadResetEvent{FromID: env.FromID}, nil
		case "ping":
			return PingEvent{}, nil
		default:
			return nil, fmt.Errorf("global event: unknown type %q", env.Type)
		}

	case ChannelDirect:
		var w directWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("direct message: %w", err)
		}
		if w.User == "" {
			return nil, fmt.Errorf("direct message: missing sender")
		}
		return ChatMessage{Msg: Message{
			Sender: w.User,
			Text:   w.Text,
			Time:   w.Time,
			Conv:   DirectKey(key.ID),
		}}, nil

	case ChannelRoom:
		var w roomWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("room message: %w", err)
		}
		roomID := w.RoomID
		if roomID == "" {
			roomID = key.ID
		}
		return ChatMessage{Msg: Message{
			SenderID: w.SenderID,
			Sender:   w.User,
			Text:     w.Text,
			Time:     w.Time,
			Conv:     RoomKey(roomID),
			ReplyTo:  w.ReplyTo,
		}}, nil
	}

	return nil, fmt.Errorf("frame on unknown channel kind %v", key.Kind)
}
