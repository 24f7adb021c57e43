package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AgentLocks hands out at most one lease per agent at a time. Entries are
// reference counted and dropped once nobody holds or waits for them.
type AgentLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*agentLock
}

type agentLock struct {
	ch   chan struct{}
	refs int
}

func NewAgentLocks() *AgentLocks {
	return &AgentLocks{locks: make(map[uuid.UUID]*agentLock)}
}

func (l *AgentLocks) ref(id uuid.UUID) *agentLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[id]
	if !ok {
		e = &agentLock{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *AgentLocks) unref(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[id]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// Acquire blocks until the agent's lease is free or ctx is done. The
// returned release func must be called exactly once.
func (l *AgentLocks) Acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	e := l.ref(id)
	select {
	case e.ch <- struct{}{}:
		return l.releaser(id, e), nil
	case <-ctx.Done():
		l.unref(id)
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lease only if it is free right now.
func (l *AgentLocks) TryAcquire(id uuid.UUID) (func(), bool) {
	e := l.ref(id)
	select {
	case e.ch <- struct{}{}:
		return l.releaser(id, e), true
	default:
		l.unref(id)
		return nil, false
	}
}

func (l *AgentLocks) releaser(id uuid.UUID, e *agentLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(id)
		})
	}
}

// Held reports whether any lease or waiter exists for id.
func (l *AgentLocks) Held(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[id]
	return ok
}
