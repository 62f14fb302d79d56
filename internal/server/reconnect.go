// Package server schedules the grace-period timers that distinguish a
// transient drop from an abandonment.
package server

import (
	"sync"
	"time"
)

// graceSupervisor arms one-shot timers per room. Expiry does not mutate any
// room state itself: the room id is handed back to the hub loop, which
// re-reads the room's state before finalizing anything. Arming replaces any
// prior timer for the same room, never stacks.
type graceSupervisor struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	expired chan<- string
	done    chan struct{}
	stopped bool
}

func newGraceSupervisor(expired chan<- string) *graceSupervisor {
	return &graceSupervisor{
		timers:  make(map[string]*time.Timer),
		expired: expired,
		done:    make(chan struct{}),
	}
}

// arm starts (or restarts, canceling any prior) the grace timer for a room.
func (s *graceSupervisor) arm(roomID string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[roomID]; ok {
		prev.Stop()
	}
	s.timers[roomID] = time.AfterFunc(duration, func() {
		s.fire(roomID)
	})
}

// cancel stops the timer for a room without side effect. A timer that
// already fired is harmless: the hub re-checks room state on expiry.
func (s *graceSupervisor) cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[roomID]; ok {
		timer.Stop()
		delete(s.timers, roomID)
	}
}

// stop prevents further fires from blocking once the hub loop has exited.
func (s *graceSupervisor) stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	close(s.done)
}

func (s *graceSupervisor) fire(roomID string) {
	s.mu.Lock()
	delete(s.timers, roomID)
	s.mu.Unlock()

	select {
	case s.expired <- roomID:
	case <-s.done:
	}
}
