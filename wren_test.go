package wren

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientWSBase(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://chat.local", "ws://chat.local"},
		{"https://chat.example.com", "wss://chat.example.com"},
		{"https://chat.example.com/", "wss://chat.example.com"},
	}
	for _, tc := range cases {
		if got := NewClient(tc.base).WSBase(); got != tc.want {
			t.Errorf("WSBase(%s) = %s, want %s", tc.base, got, tc.want)
		}
	}
}

func TestClientUnreadSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/unread/u1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"u2":3,"u3":0}`))
	}))
	defer srv.Close()

	counts, err := NewClient(srv.URL).UnreadSnapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UnreadSnapshot: %v", err)
	}
	if counts["u2"] != 3 || counts["u3"] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestClientMarkRead(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).MarkRead(context.Background(), "u1", "u2"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/mark_read/u1/u2" {
		t.Fatalf("got %s %s", gotMethod, gotPath)
	}
}

func TestClientDirectHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"user":"bob","text":"hi","time":"12:01"},{"user":"alice","text":"hey","time":"12:02"}]`))
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL).DirectHistory(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("DirectHistory: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Conv != DirectKey("u2") || msgs[0].Sender != "bob" {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
}

func TestClientRoomHistoryCarriesReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms/general/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"sender_id":"u2","user":"bob","text":"yes","time":"12:03","reply_to":{"sender_id":"u1","sender_name":"alice","text":"lunch?"}}]`))
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL).RoomHistory(context.Background(), "general")
	if err != nil {
		t.Fatalf("RoomHistory: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReplyTo == nil || msgs[0].ReplyTo.Sender != "alice" {
		t.Fatalf("reply reference lost: %+v", msgs)
	}
	if msgs[0].Conv != RoomKey("general") {
		t.Fatalf("unexpected conversation %v", msgs[0].Conv)
	}
}

func TestClientLoginStoresCredentials(t *testing.T) {
	var lastUserHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			w.Write([]byte(`{"user_id":"u1","username":"alice"}`))
		case "/api/rooms":
			lastUserHeader = r.Header.Get("X-User-ID")
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	creds, err := client.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.UserID != "u1" || creds.Username != "alice" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	if _, err := client.Rooms(context.Background()); err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if lastUserHeader != "u1" {
		t.Fatalf("credentials not attached to later requests, header = %q", lastUserHeader)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"no such room"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RoomMembers(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != http.StatusNotFound || apiErr.Message != "no such room" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
