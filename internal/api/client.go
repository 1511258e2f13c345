// Package api is the REST client for the peer-support backend. It covers
// the roster, room resolution, message history, unread counts and the
// mark-read fallback; the real-time path lives in internal/socket.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/peerwell/chatclient/internal/model"
	"github.com/peerwell/chatclient/internal/session"
)

// Action is the caller's response to a pending connection request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Client talks to the backend's REST surface with the session's bearer
// token. Errors are returned to the caller for conversion into view state;
// nothing here retries automatically.
type Client struct {
	baseURL string
	sess    session.Session
	http    *http.Client
}

// New returns a REST client rooted at baseURL.
func New(baseURL string, sess session.Session) *Client {
	return &Client{
		baseURL: baseURL,
		sess:    sess,
		http:    &http.Client{},
	}
}

// Roster fetches the caller's connections, pending and accepted alike.
func (c *Client) Roster(ctx context.Context) ([]model.Connection, error) {
	var conns []model.Connection
	if err := c.do(ctx, http.MethodGet, "/connections/", nil, &conns); err != nil {
		return nil, fmt.Errorf("internal/api: roster fetch failed: %w", err)
	}
	return conns, nil
}

// ResolveRoom requests (or creates) the direct chat room shared with the
// peer. Idempotent server-side; safe to call again after a failure.
func (c *Client) ResolveRoom(ctx context.Context, peerUserID uuid.UUID) (int64, error) {
	body := map[string]string{"recipient_id": peerUserID.String()}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/start/", body, &resp); err != nil {
		return 0, fmt.Errorf("internal/api: room resolution failed: %w", err)
	}
	return resp.ID, nil
}

// History fetches the persisted transcript for a room. The server returns
// messages in chronological order and we trust that; no re-sort.
func (c *Client) History(ctx context.Context, roomID int64) ([]model.Message, error) {
	var msgs []model.Message
	path := "/chat/" + strconv.FormatInt(roomID, 10) + "/messages/"
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("internal/api: history fetch failed: %w", err)
	}
	return msgs, nil
}

// UnreadCounts fetches the per-room unread snapshot for all rooms.
func (c *Client) UnreadCounts(ctx context.Context) (map[int64]int, error) {
	raw := map[string]int{}
	if err := c.do(ctx, http.MethodGet, "/chat/unread-counts/", nil, &raw); err != nil {
		return nil, fmt.Errorf("internal/api: unread fetch failed: %w", err)
	}

	counts := make(map[int64]int, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		counts[id] = v
	}
	return counts, nil
}

// MarkRead marks every unread message in the room as read. This is the
// REST fallback for the WebSocket read-receipt frame.
func (c *Client) MarkRead(ctx context.Context, roomID int64) error {
	path := "/chat/" + strconv.FormatInt(roomID, 10) + "/mark-read/"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, nil); err != nil {
		return fmt.Errorf("internal/api: mark-read failed: %w", err)
	}
	return nil
}

// Respond accepts or rejects a pending connection request.
func (c *Client) Respond(ctx context.Context, connectionID int64, action Action) error {
	body := map[string]any{
		"connection_id": connectionID,
		"action":        string(action),
	}
	if err := c.do(ctx, http.MethodPost, "/connections/respond/", body, nil); err != nil {
		return fmt.Errorf("internal/api: connection %s failed: %w", action, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.sess.Check(time.Now().UTC()); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.sess.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
