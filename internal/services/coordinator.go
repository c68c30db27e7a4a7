package services

import (
	"context"
	"sync"
)

// Coordinator shares per-session serialization state between the session and
// violation services. Both must be constructed from the same Coordinator so
// that ending a session and ingesting violations contend on the same locks.
type Coordinator struct {
	c *sessionCoordinator
}

func NewCoordinator() Coordinator {
	return Coordinator{c: newSessionCoordinator()}
}

func (c Coordinator) internal() *sessionCoordinator {
	if c.c == nil {
		panic("services: Coordinator must be created with NewCoordinator")
	}
	return c.c
}

// sessionCoordinator serializes work per session without blocking other
// sessions. It provides a keyed mutex for the ingest critical section and an
// in-flight counter so that ending a session can wait for pending ingestion
// to drain instead of sleeping a fixed delay.
type sessionCoordinator struct {
	mu      sync.Mutex
	entries map[string]*coordEntry
}

type coordEntry struct {
	lock     sync.Mutex
	refs     int
	inflight int
	idle     chan struct{} // closed when inflight drops to zero, lazily replaced
}

func newSessionCoordinator() *sessionCoordinator {
	return &sessionCoordinator{entries: make(map[string]*coordEntry)}
}

func (c *sessionCoordinator) acquire(sessionID string) *coordEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if !ok {
		e = &coordEntry{idle: closedChan()}
		c.entries[sessionID] = e
	}
	e.refs++
	return e
}

func (c *sessionCoordinator) release(sessionID string, e *coordEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.inflight == 0 {
		delete(c.entries, sessionID)
	}
}

// Lock serializes callers for one session. The returned function releases
// the lock.
func (c *sessionCoordinator) Lock(sessionID string) func() {
	e := c.acquire(sessionID)
	e.lock.Lock()
	return func() {
		e.lock.Unlock()
		c.release(sessionID, e)
	}
}

// Enter marks one ingestion in flight for the session. The returned function
// must be called when the ingestion finishes, success or not.
func (c *sessionCoordinator) Enter(sessionID string) func() {
	e := c.acquire(sessionID)

	c.mu.Lock()
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.inflight--
			if e.inflight == 0 {
				close(e.idle)
			}
			c.mu.Unlock()
			c.release(sessionID, e)
		})
	}
}

// WaitIdle blocks until no ingestion is in flight for the session, the
// context is cancelled, or its deadline passes. Callers bound the wait with a
// deadline so a user-facing end-session action cannot hang.
func (c *sessionCoordinator) WaitIdle(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	e, ok := c.entries[sessionID]
	if !ok || e.inflight == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := e.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
