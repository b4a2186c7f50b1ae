package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run after d. The returned Timer can be
	// stopped or rescheduled.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback that can be stopped or rescheduled.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc schedules f on a system timer.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool                 { return r.t.Stop() }
func (r realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Mock is a Clock whose time only moves when Advance or Set is called.
// Timers scheduled via AfterFunc fire synchronously inside Advance once
// the mock time passes their deadline. Safe for concurrent use.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMock returns a Mock pinned at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f to fire once the mock time reaches now+d.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{clock: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the mock time forward by d, firing due timers in
// deadline order. Callbacks run without the mock's lock held, so they
// may schedule further timers.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
	m.fireDue()
}

// Set jumps the mock time to t, firing due timers.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
	m.fireDue()
}

func (m *Mock) fireDue() {
	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			return m.timers[i].at.Before(m.timers[j].at)
		})
		var due *mockTimer
		for i, t := range m.timers {
			if !t.stopped && !t.at.After(m.now) {
				due = t
				// Marked stopped like a fired time.Timer; Reset
				// re-registers it.
				t.stopped = true
				m.timers = append(m.timers[:i], m.timers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		if due == nil {
			return
		}
		due.f()
	}
}

type mockTimer struct {
	clock   *Mock
	at      time.Time
	f       func()
	stopped bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = false
	t.at = t.clock.now.Add(d)
	if !was {
		t.clock.timers = append(t.clock.timers, t)
	}
	return was
}
