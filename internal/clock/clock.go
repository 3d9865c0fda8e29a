// Package clock supplies the two time sources the engine trusts: the local
// calendar date for streak and reward logic, and a timer factory for the sync
// debounce. Both are injectable so tests never wait on the wall clock.
package clock

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/progress-sync/internal/progress"
)

// DateClock reports today's calendar date in the user's zone.
type DateClock interface {
	Today() progress.Date
}

// Zone is a DateClock backed by the wall clock in a fixed location.
type Zone struct {
	loc *time.Location
	now func() time.Time
}

// NewZone returns a wall-clock DateClock for loc.
func NewZone(loc *time.Location) Zone {
	if loc == nil {
		loc = time.Local
	}
	return Zone{loc: loc, now: time.Now}
}

// LoadZone resolves an IANA zone name. Empty or "Local" selects the process zone.
func LoadZone(name string) (Zone, error) {
	if name == "" || name == "Local" {
		return NewZone(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewZone(loc), nil
}

// Today implements DateClock.
func (z Zone) Today() progress.Date {
	return progress.DateOf(z.now().In(z.loc))
}

// Fixed is a DateClock that only moves when told to.
type Fixed struct {
	mu  sync.Mutex
	day progress.Date
}

// NewFixed creates a date clock pinned to day.
func NewFixed(day progress.Date) *Fixed {
	return &Fixed{day: day}
}

// Today implements DateClock.
func (f *Fixed) Today() progress.Date {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.day
}

// Set moves the clock to day.
func (f *Fixed) Set(day progress.Date) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.day = day
}

// Advance moves the clock forward by n calendar days.
func (f *Fixed) Advance(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.day = f.day.AddDays(n)
}

// Timer is a pending callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Timers schedules callbacks after a delay.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real schedules callbacks on the runtime timer wheel.
type Real struct{}

// AfterFunc implements Timers.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a Timers implementation driven by Advance. Callbacks run
// synchronously on the goroutine calling Advance.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	owner *Manual
	at    time.Duration
	seq   int
	fn    func()
	done  bool
}

// NewManual returns a manual timer source at offset zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc implements Timers.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, at: m.now + d, seq: m.seq, fn: f}
	m.pending = append(m.pending, t)
	return t
}

// Stop implements Timer.
func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.owner.removeLocked(t)
	return true
}

// Advance moves time forward by d and fires every timer that became due, in
// deadline order. Timers scheduled by a firing callback fire too if they fall
// inside the window. A callback may itself call Advance; time never moves
// backwards when the outer call resumes.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = max(m.now, target)
			m.mu.Unlock()
			return
		}
		next.done = true
		m.removeLocked(next)
		m.now = max(m.now, next.at)
		m.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTimer {
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].at == m.pending[j].at {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].at < m.pending[j].at
	})
	if len(m.pending) == 0 || m.pending[0].at > target {
		return nil
	}
	return m.pending[0]
}

func (m *Manual) removeLocked(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
