// Package wren provides a Go client for the Wren chat backend.
//
// Client covers the REST surface (unread snapshots, history, rooms,
// accounts); Session drives the live side: websocket channels with
// automatic reconnect, unread bookkeeping, and message routing.
//
// Example:
//
//	client := wren.NewClient("https://chat.example.com")
//	creds, _ := client.Login(ctx, "alice", password)
//
//	sess := wren.NewSession(client,
//		wren.WithIdentity(creds),
//		wren.WithDisplay(myUI),
//		wren.WithNotifier(myUI),
//	)
//	go sess.Run(ctx)
//
//	sess.OpenDirect("user-123")
//	sess.Send("hello!")
package wren

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the Wren backend's REST surface: unread snapshots,
// mark-read, history, rooms, and account endpoints. The live side is
// Session's job; Client is plain request/response.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
	creds   Credentials
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used by the client and inherited by
// sessions built on it. The default discards everything.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient builds a client for the backend at baseURL, e.g.
// "https://chat.example.com".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials attaches an identity to subsequent requests.
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WSBase returns the websocket form of the base URL.
func (c *Client) WSBase() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	}
	return c.baseURL
}

// ----------------------------------------------------------------------------
// Request plumbing
// ----------------------------------------------------------------------------

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.UserID != "" {
		req.Header.Set("X-User-ID", c.creds.UserID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.apiError(resp)
	}
	return resp, nil
}

func (c *Client) apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Code: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Detail != "" {
		apiErr.Message = body.Detail
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func decodeJSON[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

func discard(resp *http.Response) error {
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// ----------------------------------------------------------------------------
// Unread + history
// ----------------------------------------------------------------------------

// UnreadSnapshot fetches the authoritative unread counts for userID,
// keyed by peer id.
func (c *Client) UnreadSnapshot(ctx context.Context, userID string) (map[string]int, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/unread/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[map[string]int](resp)
}

// MarkRead clears the unread count for messages from peerID to userID.
func (c *Client) MarkRead(ctx context.Context, userID, peerID string) error {
	resp, err := c.doRequest(ctx, http.MethodPost,
		"/api/mark_read/"+url.PathEscape(userID)+"/"+url.PathEscape(peerID), nil, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// MarkRoomRead clears userID's unread count for a room.
func (c *Client) MarkRoomRead(ctx context.Context, roomID, userID string) error {
	resp, err := c.doRequest(ctx, http.MethodPost,
		"/api/rooms/"+url.PathEscape(roomID)+"/mark_read/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// DirectHistory fetches the stored conversation between userID and
// peerID, oldest first.
func (c *Client) DirectHistory(ctx context.Context, userID, peerID string) ([]Message, error) {
	resp, err := c.doRequest(ctx, http.MethodGet,
		"/history/"+url.PathEscape(userID)+"/"+url.PathEscape(peerID), nil, nil)
	if err != nil {
		return nil, err
	}
	wire, err := decodeJSON[[]directWire](resp)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(wire))
	for i, w := range wire {
		msgs[i] = Message{Sender: w.User, Text: w.Text, Time: w.Time, Conv: DirectKey(peerID)}
	}
	return msgs, nil
}

// RoomHistory fetches the stored messages of a room, oldest first.
func (c *Client) RoomHistory(ctx context.Context, roomID string) ([]Message, error) {
	resp, err := c.doRequest(ctx, http.MethodGet,
		"/api/rooms/"+url.PathEscape(roomID)+"/history", nil, nil)
	if err != nil {
		return nil, err
	}
	wire, err := decodeJSON[[]roomWire](resp)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(wire))
	for i, w := range wire {
		msgs[i] = Message{
			SenderID: w.SenderID,
			Sender:   w.User,
			Text:     w.Text,
			Time:     w.Time,
			Conv:     RoomKey(roomID),
			ReplyTo:  w.ReplyTo,
		}
	}
	return msgs, nil
}

// ----------------------------------------------------------------------------
// Rooms
// ----------------------------------------------------------------------------

// Rooms lists the rooms visible to the caller.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/rooms", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]Room](resp)
}

// CreateRoom creates a room and returns it.
func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	body := map[string]string{"name": name}
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/rooms", body, nil)
	if err != nil {
		return Room{}, err
	}
	return decodeJSON[Room](resp)
}

// DeleteRoom removes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/rooms/"+url.PathEscape(roomID), nil, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// RoomMembers lists the members of a room.
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet,
		"/api/rooms/"+url.PathEscape(roomID)+"/members", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]User](resp)
}

// AddRoomMember adds userID to a room.
func (c *Client) AddRoomMember(ctx context.Context, roomID, userID string) error {
	body := map[string]string{"user_id": userID}
	resp, err := c.doRequest(ctx, http.MethodPost,
		"/api/rooms/"+url.PathEscape(roomID)+"/members", body, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// RemoveRoomMember removes userID from a room.
func (c *Client) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete,
		"/api/rooms/"+url.PathEscape(roomID)+"/members/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// ----------------------------------------------------------------------------
// Accounts
// ----------------------------------------------------------------------------

// Users fetches the full user list outside the presence stream.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/users", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[[]User](resp)
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Login exchanges a username and password for credentials. The returned
// id is opaque; the backend owns identity issuance.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	return c.auth(ctx, "/api/login", username, password)
}

// Register creates an account and returns its credentials.
func (c *Client) Register(ctx context.Context, username, password string) (Credentials, error) {
	return c.auth(ctx, "/api/register", username, password)
}

func (c *Client) auth(ctx context.Context, path, username, password string) (Credentials, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, authRequest{Username: username, Password: password}, nil)
	if err != nil {
		return Credentials{}, err
	}
	out, err := decodeJSON[authResponse](resp)
	if err != nil {
		return Credentials{}, err
	}
	creds := Credentials{UserID: out.UserID, Username: out.Username}
	c.SetCredentials(creds)
	return creds, nil
}
