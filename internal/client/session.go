package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

// State is the session's connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// ErrGaveUp surfaces after the bounded retry budget is spent; the caller
// should show a terminal "cannot connect" state, not spin forever.
var ErrGaveUp = errors.New("cannot connect: retry attempts exhausted")

type Config struct {
	ServerURL        string // ws://host:port/ws
	APIBaseURL       string // http://host:port
	Token            string
	HandshakeTimeout time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	TypingWindow     time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = 3 * time.Second
	}
}

// Handlers receive decoded server events. Nil handlers are skipped.
type Handlers struct {
	OnStateChange func(State)
	OnRoomJoined  func(*models.Room)
	OnRoomLeft    func(uuid.UUID)
	OnMessage     func(*models.Message)
	OnHistory     func([]*models.Message)
	OnUserJoined  func(protocol.UserEventPayload)
	OnUserLeft    func(protocol.UserEventPayload)
	OnTyping      func(payload protocol.TypingPayload, active bool)
	OnPresence    func(protocol.PresencePayload)
	OnError       func(protocol.ErrorPayload)
}

// Session keeps one live channel to the chat server and owns the
// reconnect policy: exponential backoff with a bounded attempt count,
// then terminal failure. Rooms are not server-remembered across drops,
// so on reconnect the session re-joins its last room and refetches
// recent history from the message store instead of trusting the
// broadcast stream for continuity.
type Session struct {
	cfg      Config
	handlers Handlers

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	state    State
	lastRoom *uuid.UUID
	closed   bool

	typing *typingState
	httpc  *http.Client
}

func NewSession(cfg Config, handlers Handlers) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:      cfg,
		handlers: handlers,
		state:    StateDisconnected,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
	s.typing = newTypingState(s, cfg.TypingWindow)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run dials and serves the channel until the context ends, Close is
// called, or the retry budget is spent. Each successful connection
// resets the budget.
func (s *Session) Run(ctx context.Context) error {
	attempts := 0
	delay := s.cfg.BackoffBase

	for {
		if s.isClosed() || ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateConnecting)
		dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, s.cfg.ServerURL+"?token="+s.cfg.Token, nil)
		if err != nil {
			attempts++
			log.Printf("[SESSION] Dial failed (attempt %d/%d): %v", attempts, s.cfg.MaxAttempts, err)
			if attempts >= s.cfg.MaxAttempts {
				s.setState(StateFailed)
				return ErrGaveUp
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.cfg.BackoffCap {
				delay = s.cfg.BackoffCap
			}
			continue
		}

		attempts = 0
		delay = s.cfg.BackoffBase
		s.setConn(conn)
		s.setState(StateConnected)
		s.resync(ctx)

		s.readLoop(conn)

		s.setConn(nil)
		s.typing.reset()
		s.setState(StateDisconnected)
	}
}

// Close ends the session permanently; Run returns after the current
// read unblocks.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) JoinRoom(roomID uuid.UUID) error {
	s.mu.Lock()
	s.lastRoom = &roomID
	s.mu.Unlock()
	return s.sendEvent(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: roomID})
}

func (s *Session) LeaveRoom(roomID uuid.UUID) error {
	s.mu.Lock()
	if s.lastRoom != nil && *s.lastRoom == roomID {
		s.lastRoom = nil
	}
	s.mu.Unlock()
	return s.sendEvent(protocol.EventLeaveRoom, protocol.LeaveRoom{RoomID: roomID})
}

func (s *Session) SendMessage(roomID uuid.UUID, content string, replyTo *uuid.UUID) error {
	return s.sendEvent(protocol.EventSendMessage, protocol.SendMessage{
		RoomID:  roomID,
		Content: content,
		Type:    models.TypeText,
		ReplyTo: replyTo,
	})
}

func (s *Session) AddReaction(messageID uuid.UUID, emoji string) error {
	return s.sendEvent(protocol.EventAddReaction, protocol.AddReaction{MessageID: messageID, Emoji: emoji})
}

func (s *Session) MarkRead(messageID uuid.UUID) error {
	return s.sendEvent(protocol.EventMarkRead, protocol.MarkRead{MessageID: messageID})
}

// Typing reports a keystroke; the typing_start/typing_stop traffic is
// debounced internally.
func (s *Session) Typing(roomID uuid.UUID) error {
	return s.typing.Pulse(roomID)
}

// StopTyping clears the indicator immediately, e.g. right after the
// composed message is sent.
func (s *Session) StopTyping(roomID uuid.UUID) error {
	return s.typing.StopNow(roomID)
}

func (s *Session) SetStatus(status models.PresenceStatus, message string) error {
	return s.sendEvent(protocol.EventSetStatus, protocol.SetStatus{Status: status, Message: message})
}

// FetchHistory pulls persisted messages over the REST surface.
func (s *Session) FetchHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	url := fmt.Sprintf("%s/api/rooms/%s/messages?limit=%d", s.cfg.APIBaseURL, roomID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history fetch failed (status %d): %s", resp.StatusCode, string(body))
	}

	var messages []*models.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return messages, nil
}

// resync restores state after a reconnect: re-issue the join and load
// recent history from the store.
func (s *Session) resync(ctx context.Context) {
	s.mu.Lock()
	room := s.lastRoom
	s.mu.Unlock()
	if room == nil {
		return
	}

	if err := s.sendEvent(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: *room}); err != nil {
		log.Printf("[SESSION] Rejoin failed: %v", err)
		return
	}

	history, err := s.FetchHistory(ctx, *room, 50)
	if err != nil {
		log.Printf("[SESSION] History refetch failed: %v", err)
		return
	}
	if s.handlers.OnHistory != nil {
		s.handlers.OnHistory(history)
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SESSION] Connection dropped: %v", err)
			}
			return
		}
		s.dispatch(raw)
	}
}

// dispatch drains one websocket frame. The server's write pump
// coalesces queued events into a single frame, so a frame can carry
// several envelopes back to back; each one is handled independently.
func (s *Session) dispatch(raw []byte) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var env protocol.Envelope
		if err := dec.Decode(&env); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[SESSION] Malformed frame: %v", err)
			}
			return
		}
		s.handle(env)
	}
}

func (s *Session) handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventRoomJoined:
		var payload protocol.RoomEventPayload
		if decode(env.Payload, &payload) && s.handlers.OnRoomJoined != nil {
			s.handlers.OnRoomJoined(payload.Room)
		}
	case protocol.EventRoomLeft:
		var payload protocol.RoomLeftPayload
		if decode(env.Payload, &payload) && s.handlers.OnRoomLeft != nil {
			s.handlers.OnRoomLeft(payload.RoomID)
		}
	case protocol.EventNewMessage, protocol.EventMessageEdited, protocol.EventMessageDeleted,
		protocol.EventReactionAdded, protocol.EventMessageRead:
		var msg models.Message
		if decode(env.Payload, &msg) && s.handlers.OnMessage != nil {
			s.handlers.OnMessage(&msg)
		}
	case protocol.EventUserJoined:
		var payload protocol.UserEventPayload
		if decode(env.Payload, &payload) && s.handlers.OnUserJoined != nil {
			s.handlers.OnUserJoined(payload)
		}
	case protocol.EventUserLeft:
		var payload protocol.UserEventPayload
		if decode(env.Payload, &payload) && s.handlers.OnUserLeft != nil {
			s.handlers.OnUserLeft(payload)
		}
	case protocol.EventUserTyping:
		var payload protocol.TypingPayload
		if decode(env.Payload, &payload) {
			s.typing.observeStart(payload)
		}
	case protocol.EventUserStoppedTyping:
		var payload protocol.TypingPayload
		if decode(env.Payload, &payload) {
			s.typing.observeStop(payload)
		}
	case protocol.EventPresenceChanged:
		var payload protocol.PresencePayload
		if decode(env.Payload, &payload) && s.handlers.OnPresence != nil {
			s.handlers.OnPresence(payload)
		}
	case protocol.EventError:
		var payload protocol.ErrorPayload
		if decode(env.Payload, &payload) && s.handlers.OnError != nil {
			s.handlers.OnError(payload)
		}
	default:
		log.Printf("[SESSION] Ignoring unknown event %q", env.Type)
	}
}

func decode(raw json.RawMessage, target any) bool {
	if err := json.Unmarshal(raw, target); err != nil {
		log.Printf("[SESSION] Payload decode error: %v", err)
		return false
	}
	return true
}

func (s *Session) sendEvent(eventType protocol.EventType, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(protocol.Envelope{Type: eventType, Payload: raw})
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed && s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(state)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
