package wren

import (
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Channels
// ============================================================================

// ChannelKind classifies the websocket endpoints the client speaks to.
type ChannelKind int

const (
	ChannelPresence ChannelKind = iota
	ChannelGlobal
	ChannelDirect
	ChannelRoom
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelPresence:
		return "presence"
	case ChannelGlobal:
		return "global"
	case ChannelDirect:
		return "direct"
	case ChannelRoom:
		return "room"
	}
	return "unknown"
}

// ChannelKey identifies one logical connection. Presence and global
// channels carry an empty ID; direct channels are keyed by peer ID and
// room channels by room ID.
type ChannelKey struct {
	Kind ChannelKind
	ID   string
}

func (k ChannelKey) String() string {
	if k.ID == "" {
		return k.Kind.String()
	}
	return k.Kind.String() + ":" + k.ID
}

// ChannelState is the lifecycle position of a channel.
type ChannelState int

const (
	// StateConnecting means a dial is in flight.
	StateConnecting ChannelState = iota
	// StateOpen means frames flow in both directions.
	StateOpen
	// StateClosedRetrying means the connection dropped unexpectedly and a
	// redial is scheduled.
	StateClosedRetrying
	// StateClosedFinal means the channel was closed on purpose and will
	// not come back under this key.
	StateClosedFinal
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "closed-retrying"
	case StateClosedFinal:
		return "closed-final"
	}
	return "unknown"
}

// channel is the registry's record for one logical connection. All
// fields are owned by the session loop; reader goroutines touch only
// the conn they were handed at spawn.
type channel struct {
	key      ChannelKey
	endpoint string
	state    ChannelState

	conn *websocket.Conn

	// attempt tags the dial generation so results from a superseded dial
	// or reader can be recognized and dropped.
	attempt string

	retry *time.Timer
}
