// Package debounce provides the shared expiry utility behind typing
// indicators: the sender uses it to emit a stop signal after an idle
// window, receivers use it to clear stale indicators when no stop ever
// arrives.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once the window elapses without another Touch.
type Debouncer struct {
	window time.Duration
	fn     func()
	mu     sync.Mutex
	timer  *time.Timer
}

func New(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Touch arms the timer, or pushes an armed timer back by a full window.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Reset(d.window)
		return
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Stop disarms the timer without firing. It reports whether a timer was
// pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// ExpiryMap runs one debouncer per key. Receivers key it by
// (room, user) to expire typing indicators independently.
type ExpiryMap struct {
	window time.Duration
	onFire func(key string)
	mu     sync.Mutex
	timers map[string]*Debouncer
}

func NewExpiryMap(window time.Duration, onFire func(key string)) *ExpiryMap {
	return &ExpiryMap{
		window: window,
		onFire: onFire,
		timers: make(map[string]*Debouncer),
	}
}

// Touch arms (or re-arms) the expiry for one key.
func (m *ExpiryMap) Touch(key string) {
	m.mu.Lock()
	d, ok := m.timers[key]
	if !ok {
		d = New(m.window, func() {
			m.mu.Lock()
			delete(m.timers, key)
			m.mu.Unlock()
			m.onFire(key)
		})
		m.timers[key] = d
	}
	m.mu.Unlock()

	d.Touch()
}

// Cancel disarms one key without firing.
func (m *ExpiryMap) Cancel(key string) {
	m.mu.Lock()
	d, ok := m.timers[key]
	if ok {
		delete(m.timers, key)
	}
	m.mu.Unlock()

	if ok {
		d.Stop()
	}
}

// Len reports how many keys are currently armed.
func (m *ExpiryMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
