package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/debounce"
	"community-chat/internal/protocol"
)

// typingState owns both halves of the indicator protocol. Outbound, it
// turns keystroke pulses into a single typing_start followed by an
// automatic typing_stop after an idle window. Inbound, it expires
// other users' indicators on its own clock at three windows, so a
// peer that drops mid-keystroke never leaves a permanent "is typing"
// line on screen.
type typingState struct {
	session *Session
	window  time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]bool
	stops  map[uuid.UUID]*debounce.Debouncer

	remote *debounce.ExpiryMap
	seen   map[string]protocol.TypingPayload
}

func newTypingState(session *Session, window time.Duration) *typingState {
	t := &typingState{
		session: session,
		window:  window,
		active:  make(map[uuid.UUID]bool),
		stops:   make(map[uuid.UUID]*debounce.Debouncer),
		seen:    make(map[string]protocol.TypingPayload),
	}
	t.remote = debounce.NewExpiryMap(3*window, t.expireRemote)
	return t
}

// Pulse is called on every keystroke. The first pulse in a room emits
// typing_start; the stop is debounced until the keystrokes go quiet.
func (t *typingState) Pulse(roomID uuid.UUID) error {
	t.mu.Lock()
	wasActive := t.active[roomID]
	t.active[roomID] = true
	d, ok := t.stops[roomID]
	if !ok {
		d = debounce.New(t.window, func() { t.autoStop(roomID) })
		t.stops[roomID] = d
	}
	t.mu.Unlock()

	if !wasActive {
		if err := t.session.sendEvent(protocol.EventTypingStart, protocol.TypingStart{RoomID: roomID}); err != nil {
			t.mu.Lock()
			delete(t.active, roomID)
			t.mu.Unlock()
			return err
		}
	}
	d.Touch()
	return nil
}

// StopNow emits typing_stop immediately, as when the user sends the
// message they were composing.
func (t *typingState) StopNow(roomID uuid.UUID) error {
	t.mu.Lock()
	wasActive := t.active[roomID]
	delete(t.active, roomID)
	d := t.stops[roomID]
	t.mu.Unlock()

	if d != nil {
		d.Stop()
	}
	if !wasActive {
		return nil
	}
	return t.session.sendEvent(protocol.EventTypingStop, protocol.TypingStop{RoomID: roomID})
}

func (t *typingState) autoStop(roomID uuid.UUID) {
	t.mu.Lock()
	wasActive := t.active[roomID]
	delete(t.active, roomID)
	t.mu.Unlock()

	if !wasActive {
		return
	}
	if err := t.session.sendEvent(protocol.EventTypingStop, protocol.TypingStop{RoomID: roomID}); err == nil {
		return
	}
	// Connection is gone; the server clears typing state on disconnect.
}

func (t *typingState) observeStart(payload protocol.TypingPayload) {
	key := remoteKey(payload.RoomID, payload.UserID)
	t.mu.Lock()
	_, known := t.seen[key]
	t.seen[key] = payload
	t.mu.Unlock()

	t.remote.Touch(key)
	if !known && t.session.handlers.OnTyping != nil {
		t.session.handlers.OnTyping(payload, true)
	}
}

func (t *typingState) observeStop(payload protocol.TypingPayload) {
	key := remoteKey(payload.RoomID, payload.UserID)
	t.mu.Lock()
	_, known := t.seen[key]
	delete(t.seen, key)
	t.mu.Unlock()

	t.remote.Cancel(key)
	if known && t.session.handlers.OnTyping != nil {
		t.session.handlers.OnTyping(payload, false)
	}
}

func (t *typingState) expireRemote(key string) {
	t.mu.Lock()
	payload, known := t.seen[key]
	delete(t.seen, key)
	t.mu.Unlock()

	if known && t.session.handlers.OnTyping != nil {
		t.session.handlers.OnTyping(payload, false)
	}
}

// reset drops all local and remote typing state, as on a connection
// drop where the server forgets it anyway.
func (t *typingState) reset() {
	t.mu.Lock()
	stops := t.stops
	t.active = make(map[uuid.UUID]bool)
	t.stops = make(map[uuid.UUID]*debounce.Debouncer)
	keys := make([]string, 0, len(t.seen))
	for key := range t.seen {
		keys = append(keys, key)
	}
	t.seen = make(map[string]protocol.TypingPayload)
	t.mu.Unlock()

	for _, d := range stops {
		d.Stop()
	}
	for _, key := range keys {
		t.remote.Cancel(key)
	}
}

func remoteKey(roomID, userID uuid.UUID) string {
	return roomID.String() + "|" + userID.String()
}
