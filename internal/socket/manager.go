// Package socket owns the per-room WebSocket connection: the connect and
// reconnect state machine, frame dispatch, and the outbound send, read
// receipt and unread-count actions.
package socket

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/microcosm-cc/bluemonday"

	"github.com/peerwell/chatclient/internal/model"
	"github.com/peerwell/chatclient/internal/session"
)

var (
	ErrSocketClosed    = errors.New("internal/socket: socket is not open")
	ErrReconnectFailed = errors.New("internal/socket: reconnect attempts exhausted")
)

// State is the manager's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

// EventType discriminates manager events.
type EventType int

const (
	EventConnecting EventType = iota
	EventOpen
	EventFrame
	EventReconnecting
	EventClosed
	EventFailed
)

// Event is delivered to the controller for every state change and inbound
// frame. Transport errors ride on EventReconnecting/EventFailed rather than
// being surfaced the moment they happen; a transient error followed by a
// successful reconnect should never reach the user.
type Event struct {
	Type    EventType
	Frame   model.Frame
	Attempt int
	Delay   time.Duration
	Err     error
}

// Config tunes one manager instance. Tests shrink the delays.
type Config struct {
	URL string

	// MaxRetries bounds automatic reconnects after an abnormal close.
	MaxRetries int

	// BackoffBase is the first reconnect delay; it doubles per attempt.
	BackoffBase time.Duration

	// ConnectDelay is waited out before the very first dial.
	ConnectDelay time.Duration
}

// Manager runs the socket state machine for exactly one room:
//
//	idle -> connecting -> open -> closed(normal) | closed(error)
//
// An abnormal close re-enters connecting after backoff until MaxRetries is
// exhausted, at which point the manager parks in a terminal failed state.
type Manager struct {
	cfg    Config
	dialer Dialer
	sess   session.Session
	policy *bluemonday.Policy

	events   chan Event
	outbound chan []byte

	quit      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state State
}

// New returns an idle manager; call Run to start connecting.
func New(cfg Config, dialer Dialer, sess session.Session) *Manager {
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		sess:     sess,
		policy:   bluemonday.StrictPolicy(),
		events:   make(chan Event, 64),
		outbound: make(chan []byte, 64),
		quit:     make(chan struct{}),
		state:    StateIdle,
	}
}

// Events streams state changes and inbound frames. Closed when Run returns.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send queues an outbound chat message carrying the given client id.
func (m *Manager) Send(text, clientID string) error {
	return m.enqueue(model.EncodeSend(text, m.sess.FullName, clientID))
}

// MarkRead queues a read receipt for the given message ids.
func (m *Manager) MarkRead(roomID int64, messageIDs []int64) error {
	return m.enqueue(model.EncodeMarkRead(roomID, messageIDs))
}

// MarkRoomRead queues the whole-room read signal. Used when a live message
// arrives while the viewer already has the room open and no per-message id
// is available to receipt individually.
func (m *Manager) MarkRoomRead(roomID int64) error {
	return m.enqueue(model.EncodeReadLegacy(roomID, m.sess.UserID.String()))
}

// RequestUnread queues an unread-count query.
func (m *Manager) RequestUnread() error {
	return m.enqueue(model.EncodeUnreadRequest())
}

// Close deliberately shuts the socket down with a normal close code. No
// reconnect is attempted. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
}

func (m *Manager) enqueue(data []byte) error {
	if m.State() != StateOpen {
		return ErrSocketClosed
	}
	select {
	case m.outbound <- data:
		return nil
	case <-m.quit:
		return ErrSocketClosed
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run drives the state machine until a deliberate close, context
// cancellation, or reconnect exhaustion. The events channel is closed on
// return.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.events)

	attempt := 0
	delay := m.cfg.ConnectDelay

	for {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-m.quit:
				timer.Stop()
				m.setState(StateClosed)
				m.emit(Event{Type: EventClosed})
				return
			case <-ctx.Done():
				timer.Stop()
				m.setState(StateClosed)
				m.emit(Event{Type: EventClosed})
				return
			}
		}

		m.setState(StateConnecting)
		m.emit(Event{Type: EventConnecting, Attempt: attempt})

		conn, err := m.dialer.Dial(ctx, m.cfg.URL)
		if err == nil {
			m.setState(StateOpen)
			m.emit(Event{Type: EventOpen})

			err = m.serve(ctx, conn)
			if err == nil {
				m.setState(StateClosed)
				m.emit(Event{Type: EventClosed})
				return
			}
		}

		attempt++
		if attempt > m.cfg.MaxRetries {
			slog.Warn("socket reconnect exhausted",
				"url", m.cfg.URL,
				"attempts", m.cfg.MaxRetries,
				"error", err)
			m.setState(StateFailed)
			m.emit(Event{Type: EventFailed, Err: ErrReconnectFailed})
			return
		}

		delay = m.cfg.BackoffBase << (attempt - 1)
		m.setState(StateConnecting)
		m.emit(Event{Type: EventReconnecting, Attempt: attempt, Delay: delay, Err: err})
	}
}

type readResult struct {
	data []byte
	err  error
}

// serve pumps one live connection. Returns nil on deliberate close, the
// transport error otherwise.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	// First outbound action on open: ask for the room's unread count so
	// the badge converges without waiting for the next poll cycle.
	if err := conn.Write(ctx, model.EncodeUnreadRequest()); err != nil {
		conn.Close(websocket.StatusInternalError, "unread request failed")
		return err
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readCh := make(chan readResult, 1)
	go func() {
		for {
			data, err := conn.Read(readCtx)
			select {
			case readCh <- readResult{data: data, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-m.outbound:
			if err := conn.Write(ctx, data); err != nil {
				// The read pump will observe the dead connection;
				// reporting is deferred to the close path.
				slog.Warn("socket write failed", "error", err)
			}

		case r := <-readCh:
			if r.err != nil {
				if websocket.CloseStatus(r.err) == websocket.StatusNormalClosure {
					return nil
				}
				return r.err
			}
			m.dispatch(r.data)

		case <-m.quit:
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return nil

		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "context cancelled")
			return nil
		}
	}
}

// dispatch decodes one inbound payload and forwards it as an event.
// Malformed frames are logged and dropped; they must never take the
// connection down.
func (m *Manager) dispatch(data []byte) {
	frame, err := model.DecodeFrame(data)
	if err != nil {
		log.Printf("dropping malformed frame: %v", err)
		return
	}

	switch frame.Kind {
	case model.FrameNewMessage:
		// Our own sends come back on this path too. The sender already
		// holds an optimistic local copy, so suppress the echo. Matching
		// is by author name; the legacy protocol does not echo client ids.
		if frame.Author == m.sess.FullName {
			return
		}
		frame.Content = m.policy.Sanitize(frame.Content)
		m.emit(Event{Type: EventFrame, Frame: frame})

	case model.FrameUnknown:
		log.Printf("dropping frame with unrecognized type")

	default:
		m.emit(Event{Type: EventFrame, Frame: frame})
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Println("skipping socket event - channel full or consumer slow")
	}
}
