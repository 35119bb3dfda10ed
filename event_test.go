package wren

import "testing"

func TestDecodePresenceFrame(t *testing.T) {
	key := ChannelKey{Kind: ChannelPresence}
	ev, err := decodeFrame(key, []byte(`[{"id":"u1","name":"alice","online":true},{"id":"u2","name":"bob","online":false}]`))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	snap, ok := ev.(PresenceSnapshot)
	if !ok {
		t.Fatalf("expected PresenceSnapshot, got %T", ev)
	}
	if len(snap.Users) != 2 || snap.Users[0].Name != "alice" || !snap.Users[0].Online {
		t.Fatalf("unexpected snapshot: %+v", snap.Users)
	}
}

func TestDecodeGlobalFrames(t *testing.T) {
	key := ChannelKey{Kind: ChannelGlobal}

	t.Run("notify", func(t *testing.T) {
		ev, err := decodeFrame(key, []byte(`{"type":"notify","from_id":"u2","from_name":"bob","text":"hey","time":"12:01"}`))
		if err != nil {
			t.Fatalf("decodeFrame: %v", err)
		}
		n, ok := ev.(NotifyEvent)
		if !ok || n.FromID != "u2" || n.FromName != "bob" || n.Text != "hey" {
			t.Fatalf("unexpected event: %#v", ev)
		}
	})

	t.Run("unread_reset", func(t *testing.T) {
		ev, err := decodeFrame(key, []byte(`{"type":"unread_reset","from_id":"u2"}`))
		if err != nil {
			t.Fatalf("decodeFrame: %v", err)
		}
		if r, ok := ev.(UnreadResetEvent); !ok || r.FromID != "u2" {
			t.Fatalf("unexpected event: %#v", ev)
		}
	})

	t.Run("ping", func(t *testing.T) {
		ev, err := decodeFrame(key, []byte(`{"type":"ping"}`))
		if err != nil {
			t.Fatalf("decodeFrame: %v", err)
		}
		if _, ok := ev.(PingEvent); !ok {
			t.Fatalf("expected PingEvent, got %T", ev)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := decodeFrame(key, []byte(`{"type":"mystery"}`)); err == nil {
			t.Fatal("expected error for unknown event type")
		}
	})
}

func TestDecodeDirectFrame(t *testing.T) {
	key := ChannelKey{Kind: ChannelDirect, ID: "u2"}

	ev, err := decodeFrame(key, []byte(`{"user":"bob","text":"hi","time":"12:01"}`))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	cm, ok := ev.(ChatMessage)
	if !ok {
		t.Fatalf("expected ChatMessage, got %T", ev)
	}
	if cm.Msg.Conv != DirectKey("u2") {
		t.Fatalf("conversation should come from the channel key, got %v", cm.Msg.Conv)
	}
	if cm.Msg.Sender != "bob" || cm.Msg.Text != "hi" {
		t.Fatalf("unexpected message: %+v", cm.Msg)
	}

	if _, err := decodeFrame(key, []byte(`{"text":"no sender"}`)); err == nil {
		t.Fatal("expected error for missing sender")
	}
}

func TestDecodeRoomFrame(t *testing.T) {
	key := ChannelKey{Kind: ChannelRoom, ID: "general"}

	t.Run("with reply", func(t *testing.T) {
		ev, err := decodeFrame(key, []byte(`{"sender_id":"u2","user":"bob","text":"agreed","time":"12:02","reply_to":{"sender_id":"u3","sender_name":"carol","text":"lunch?"}}`))
		if err != nil {
			t.Fatalf("decodeFrame: %v", err)
		}
		cm := ev.(ChatMessage)
		if cm.Msg.ReplyTo == nil || cm.Msg.ReplyTo.Sender != "carol" {
			t.Fatalf("reply reference lost: %+v", cm.Msg)
		}
		if cm.Msg.Conv != RoomKey("general") {
			t.Fatalf("unexpected conversation %v", cm.Msg.Conv)
		}
	})

	t.Run("room id from payload wins", func(t *testing.T) {
		ev, err := decodeFrame(key, []byte(`{"user":"bob","text":"x","room_id":"random"}`))
		if err != nil {
			t.Fatalf("decodeFrame: %v", err)
		}
		if conv := ev.(ChatMessage).Msg.Conv; conv != RoomKey("random") {
			t.Fatalf("expected room from payload, got %v", conv)
		}
	})
}

func TestDecodeMalformedFrame(t *testing.T) {
	for _, kind := range []ChannelKind{ChannelPresence, ChannelGlobal, ChannelDirect, ChannelRoom} {
		if _, err := decodeFrame(ChannelKey{Kind: kind}, []byte(`{{{`)); err == nil {
			t.Fatalf("%v: expected error for malformed frame", kind)
		}
	}
}
