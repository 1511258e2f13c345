// Package controller orchestrates one chat screen: the connection roster,
// the active room transcript, the composer, and the socket and unread state
// behind them. One Controller instance owns its transcript, unread map and
// socket handle; no two instances hold a socket for the same room.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/peerwell/chatclient/internal/api"
	"github.com/peerwell/chatclient/internal/config"
	"github.com/peerwell/chatclient/internal/model"
	"github.com/peerwell/chatclient/internal/roster"
	"github.com/peerwell/chatclient/internal/session"
	"github.com/peerwell/chatclient/internal/socket"
	"github.com/peerwell/chatclient/internal/unread"
)

var (
	// ErrNotAccepted blocks chat with a peer whose connection request is
	// still pending or was rejected. Checked before any network call.
	ErrNotAccepted = errors.New("internal/controller: connection not yet accepted")

	// ErrRateLimited is returned when the composer send limit is hit.
	ErrRateLimited = errors.New("internal/controller: sending too fast")
)

// EventKind discriminates controller events.
type EventKind int

const (
	// EventTranscript fires when the transcript gains or mutates an entry.
	EventTranscript EventKind = iota
	// EventUnread fires when any unread counter changes.
	EventUnread
	// EventSocket fires on socket state transitions.
	EventSocket
	// EventError carries a terminal or user-visible error.
	EventError
)

// Event is pushed to the embedding UI on every observable state change.
type Event struct {
	Kind    EventKind
	Message model.Message
	State   socket.State
	Err     error
}

// Controller drives one role's chat view.
type Controller struct {
	role   model.Role
	sess   session.Session
	api    *api.Client
	cfg    config.Config
	dialer socket.Dialer

	recon  *unread.Reconciler
	events chan Event

	mu           sync.Mutex
	conns        []model.Connection
	selected     *model.Connection
	roomID       int64
	roomCache    map[int64]int64 // connection id -> room id, session lifetime
	transcript   []model.Message
	sock         *socket.Manager
	sockCancel   context.CancelFunc
	limiter      *rate.Limiter
	firstConnect bool
}

// New builds a controller for the given role. The session is passed in
// explicitly; there is no ambient identity.
func New(role model.Role, sess session.Session, client *api.Client, dialer socket.Dialer, cfg config.Config) *Controller {
	c := &Controller{
		role:         role,
		sess:         sess,
		api:          client,
		cfg:          cfg,
		dialer:       dialer,
		events:       make(chan Event, 64),
		roomCache:    make(map[int64]int64),
		firstConnect: true,
	}
	c.recon = unread.New(client.UnreadCounts, cfg.PollInterval)
	return c
}

// NewSeeker and NewListener are the two screens the application mounts.
func NewSeeker(sess session.Session, client *api.Client, dialer socket.Dialer, cfg config.Config) *Controller {
	return New(model.RoleSeeker, sess, client, dialer, cfg)
}

func NewListener(sess session.Session, client *api.Client, dialer socket.Dialer, cfg config.Config) *Controller {
	return New(model.RoleListener, sess, client, dialer, cfg)
}

// Events streams state changes to the embedding UI.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Run drives the unread poll and forwards its updates until ctx ends.
func (c *Controller) Run(ctx context.Context) {
	go c.recon.Run(ctx)

	for {
		select {
		case <-c.recon.Updates():
			c.emit(Event{Kind: EventUnread})
		case <-ctx.Done():
			return
		}
	}
}

// Roster fetches the caller's connections and returns them in display
// order: unread conversations first, the selected one last, name tie-break.
func (c *Controller) Roster(ctx context.Context) ([]model.Connection, error) {
	conns, err := c.api.Roster(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conns = conns
	selectedID := int64(0)
	if c.selected != nil {
		selectedID = c.selected.ID
	}
	unreadByConn := make(map[int64]int, len(conns))
	for _, conn := range conns {
		if roomID, ok := c.roomCache[conn.ID]; ok {
			unreadByConn[conn.ID] = c.recon.Get(roomID)
		}
	}
	c.mu.Unlock()

	return roster.Order(conns, unreadByConn, selectedID), nil
}

// Respond accepts or rejects a pending connection request, making the
// peer chat-eligible (or not).
func (c *Controller) Respond(ctx context.Context, connectionID int64, action api.Action) error {
	return c.api.Respond(ctx, connectionID, action)
}

// Open selects a peer and brings up their room: eligibility guard, room
// resolution, history seed, read receipts for already-unread history, then
// the socket. History failure seeds an empty transcript but never blocks
// the socket.
func (c *Controller) Open(ctx context.Context, conn model.Connection) error {
	if !conn.ChatEligible() {
		return fmt.Errorf("%w: %s is %s", ErrNotAccepted, conn.FullName, conn.Status)
	}

	// At most one live socket at a time.
	c.closeRoom()

	c.mu.Lock()
	roomID, cached := c.roomCache[conn.ID]
	c.mu.Unlock()

	if !cached {
		var err error
		roomID, err = c.api.ResolveRoom(ctx, conn.UserID)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.roomCache[conn.ID] = roomID
		c.mu.Unlock()
	}

	msgs, histErr := c.api.History(ctx, roomID)
	if histErr != nil {
		msgs = nil
		c.emit(Event{Kind: EventError, Err: histErr})
	}

	// Receipt any messages that were unread at load. The socket is not up
	// yet, so this takes the REST fallback path.
	if ids := unreadIDs(msgs, c.sess.FullName); len(ids) > 0 {
		if err := c.api.MarkRead(ctx, roomID); err == nil {
			for i := range msgs {
				if msgs[i].Author != c.sess.FullName {
					msgs[i].Read = true
				}
			}
		}
		c.recon.Zero(roomID)
	}

	delay := time.Duration(0)
	c.mu.Lock()
	if c.firstConnect {
		delay = c.cfg.ConnectDelay
		c.firstConnect = false
	}

	selected := conn
	c.selected = &selected
	c.roomID = roomID
	c.transcript = msgs
	c.limiter = rate.NewLimiter(rate.Every(c.cfg.SendWindow/time.Duration(c.cfg.SendLimit)), c.cfg.SendLimit)

	sock := socket.New(socket.Config{
		URL:          socket.URL(c.cfg.WSBaseURL, roomID, c.sess.Token),
		MaxRetries:   c.cfg.ReconnectMax,
		BackoffBase:  c.cfg.BackoffBase,
		ConnectDelay: delay,
	}, c.dialer, c.sess)

	sockCtx, cancel := context.WithCancel(context.Background())
	c.sock = sock
	c.sockCancel = cancel
	c.mu.Unlock()

	go sock.Run(sockCtx)
	go c.pump(sock, roomID)

	return nil
}

// Reconnect force-reopens the currently selected room with no connect
// delay, e.g. after the socket parked in its failed state.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	selected := c.selected
	c.mu.Unlock()

	if selected == nil {
		return socket.ErrSocketClosed
	}
	return c.Open(ctx, *selected)
}

// Send queues a message to the open room and appends it to the transcript
// optimistically. Callers clear the composer on success, not on ack.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Composer is disabled while disconnected.
	if c.sock == nil || c.sock.State() != socket.StateOpen {
		return socket.ErrSocketClosed
	}
	if !c.limiter.Allow() {
		return ErrRateLimited
	}

	clientID := uuid.NewString()
	if err := c.sock.Send(text, clientID); err != nil {
		return err
	}

	msg := model.Message{
		ClientID:  clientID,
		Content:   text,
		Author:    c.sess.FullName,
		Timestamp: time.Now().UTC(),
	}
	c.transcript = append(c.transcript, msg)
	c.emit(Event{Kind: EventTranscript, Message: msg})
	return nil
}

// Transcript returns a copy of the active room's messages.
func (c *Controller) Transcript() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Selected returns the open conversation, if any.
func (c *Controller) Selected() (model.Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return model.Connection{}, false
	}
	return *c.selected, true
}

// Unread returns the current count for a room.
func (c *Controller) Unread(roomID int64) int {
	return c.recon.Get(roomID)
}

// UnreadFor returns the unread count for a connection, 0 while its room
// has not been resolved yet.
func (c *Controller) UnreadFor(connectionID int64) int {
	c.mu.Lock()
	roomID, ok := c.roomCache[connectionID]
	c.mu.Unlock()

	if !ok {
		return 0
	}
	return c.recon.Get(roomID)
}

// SocketState reports the active socket's state, StateIdle when no room
// is open.
func (c *Controller) SocketState() socket.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sock == nil {
		return socket.StateIdle
	}
	return c.sock.State()
}

// Close tears the active room down: socket closed with a normal code,
// timers cancelled, transcript and selection cleared. The room cache
// survives for the session.
func (c *Controller) Close() {
	c.closeRoom()
}

func (c *Controller) closeRoom() {
	c.mu.Lock()
	sock := c.sock
	cancel := c.sockCancel
	c.sock = nil
	c.sockCancel = nil
	c.selected = nil
	c.roomID = 0
	c.transcript = nil
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// pump translates one socket's events into controller state. It exits when
// the socket's event channel closes; events from a superseded socket are
// ignored.
func (c *Controller) pump(sock *socket.Manager, roomID int64) {
	for ev := range sock.Events() {
		if !c.current(sock) && ev.Type == socket.EventFrame {
			continue
		}

		switch ev.Type {
		case socket.EventFrame:
			c.handleFrame(roomID, ev.Frame)
		case socket.EventFailed:
			c.emit(Event{Kind: EventError, Err: ev.Err})
			c.emit(Event{Kind: EventSocket, State: socket.StateFailed})
		case socket.EventOpen:
			c.emit(Event{Kind: EventSocket, State: socket.StateOpen})
		case socket.EventConnecting, socket.EventReconnecting:
			c.emit(Event{Kind: EventSocket, State: socket.StateConnecting})
		case socket.EventClosed:
			c.emit(Event{Kind: EventSocket, State: socket.StateClosed})
		}
	}
}

func (c *Controller) current(sock *socket.Manager) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock == sock
}

func (c *Controller) handleFrame(roomID int64, frame model.Frame) {
	switch frame.Kind {
	case model.FrameNewMessage:
		msg := model.Message{
			Content:   frame.Content,
			Author:    frame.Author,
			ClientID:  frame.ClientID,
			Timestamp: time.Now().UTC(),
			// Inbound messages are delivered by definition on the
			// receiving side.
			Delivered: true,
			Read:      true,
		}

		c.mu.Lock()
		c.transcript = append(c.transcript, msg)
		sock := c.sock
		c.mu.Unlock()

		// The viewer has the room open, so receipt immediately and zero
		// the badge rather than waiting for the next poll.
		if sock != nil {
			_ = sock.MarkRoomRead(roomID)
		}
		c.recon.Zero(roomID)
		c.emit(Event{Kind: EventTranscript, Message: msg})

	case model.FrameDelivered:
		c.ack(frame.MessageID, false)

	case model.FrameRead:
		c.ack(frame.MessageID, true)

	case model.FrameUnreadCount:
		c.recon.Apply(roomID, frame.Count)
	}
}

// ack flips the delivered (and, for read receipts, read) flag on the
// matching own message, in place. Exact server-id match is tried first;
// failing that the oldest unacknowledged own message adopts the id, since
// the backend acks our optimistic entries with ids we have never seen.
func (c *Controller) ack(messageID int64, read bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i := range c.transcript {
		if c.transcript[i].ID == messageID && messageID != 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range c.transcript {
			m := c.transcript[i]
			if m.Author == c.sess.FullName && m.ID == 0 && !m.Delivered {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return
	}

	c.transcript[idx].ID = messageID
	c.transcript[idx].Delivered = true
	if read {
		c.transcript[idx].Read = true
	}
	c.emit(Event{Kind: EventTranscript, Message: c.transcript[idx]})
}

func unreadIDs(msgs []model.Message, self string) []int64 {
	var ids []int64
	for _, m := range msgs {
		if !m.Read && m.Author != self {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
