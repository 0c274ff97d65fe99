// Package timer provides the session timer scheduler: one logical timer per
// (session, purpose), where re-arming replaces any prior timer for the pair
// and a disarmed timer's callback never runs.
package timer

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Purpose identifies which deadline a timer enforces.
type Purpose string

// Timer purposes.
const (
	PurposeQuestion  Purpose = "question"
	PurposeSession   Purpose = "session"
	PurposeChallenge Purpose = "challenge"
)

type key struct {
	sessionID string
	purpose   Purpose
}

type armed struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler arms and disarms delayed callbacks keyed by (session, purpose).
// Timers are not additive: arming a purpose implicitly disarms any prior
// timer for the same pair. Callbacks run on the timer goroutine; callers are
// expected to re-validate session state inside the callback, since a fire
// can race a disarm that happens after the callback is already scheduled.
type Scheduler struct {
	mu      sync.Mutex
	entries map[key]*armed
	nextGen uint64
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		entries: make(map[key]*armed),
	}
}

// Arm schedules fn to run after delay for the (sessionID, purpose) pair,
// replacing any timer already armed for that pair.
func (s *Scheduler) Arm(sessionID string, purpose Purpose, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sessionID: sessionID, purpose: purpose}
	if prev, ok := s.entries[k]; ok {
		prev.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen

	entry := &armed{gen: gen}
	entry.timer = time.AfterFunc(delay, func() {
		if !s.claim(k, gen) {
			return
		}
		fn()
	})
	s.entries[k] = entry

	log.Debug().
		Str("session_id", sessionID).
		Str("purpose", string(purpose)).
		Dur("delay", delay).
		Msg("Timer armed")
}

// claim removes the entry if it is still the armed generation. Returns false
// when the timer was re-armed or disarmed after this fire was scheduled.
func (s *Scheduler) claim(k key, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[k]
	if !ok || entry.gen != gen {
		return false
	}
	delete(s.entries, k)
	return true
}

// Disarm cancels the timer for (sessionID, purpose) if one is armed.
func (s *Scheduler) Disarm(sessionID string, purpose Purpose) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sessionID: sessionID, purpose: purpose}
	if entry, ok := s.entries[k]; ok {
		entry.timer.Stop()
		delete(s.entries, k)
	}
}

// DisarmAll cancels every timer for a session. Called on any terminal
// transition.
func (s *Scheduler) DisarmAll(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entry := range s.entries {
		if k.sessionID == sessionID {
			entry.timer.Stop()
			delete(s.entries, k)
		}
	}
}

// Armed reports whether a timer is currently armed for the pair.
func (s *Scheduler) Armed(sessionID string, purpose Purpose) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key{sessionID: sessionID, purpose: purpose}]
	return ok
}

// Stop disarms every timer. Used during shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, k)
	}
}
