// Package lock provides per-player serialization of session work.
// Inbound messages and timer callbacks for the same player must never run
// concurrently; different players proceed in parallel.
package lock

import "sync"

// PlayerLock provides per-player locking. Both message handling and timer
// callbacks acquire it before touching a player's session, which makes the
// first-committer-wins race resolution between the two safe.
type PlayerLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewPlayerLock creates a new PlayerLock instance.
func NewPlayerLock() *PlayerLock {
	return &PlayerLock{}
}

// getLock retrieves or creates a mutex for the given player ID.
func (pl *PlayerLock) getLock(playerID int64) *sync.Mutex {
	if v, ok := pl.locks.Load(playerID); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := pl.locks.LoadOrStore(playerID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Lock acquires the lock for a player.
func (pl *PlayerLock) Lock(playerID int64) {
	pl.getLock(playerID).Lock()
}

// Unlock releases the lock for a player.
func (pl *PlayerLock) Unlock(playerID int64) {
	if v, ok := pl.locks.Load(playerID); ok {
		v.(*sync.Mutex).Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (pl *PlayerLock) TryLock(playerID int64) bool {
	return pl.getLock(playerID).TryLock()
}

// WithLock executes fn while holding the player's lock.
func (pl *PlayerLock) WithLock(playerID int64, fn func() error) error {
	pl.Lock(playerID)
	defer pl.Unlock(playerID)
	return fn()
}
