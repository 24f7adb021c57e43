package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentLocksExclusive(t *testing.T) {
	locks := NewAgentLocks()
	id := uuid.New()

	release, err := locks.Acquire(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, locks.Held(id))

	_, ok := locks.TryAcquire(id)
	assert.False(t, ok)

	// other agents are unaffected
	other, ok := locks.TryAcquire(uuid.New())
	require.True(t, ok)
	other()

	acquired := make(chan func())
	go func() {
		r, err := locks.Acquire(context.Background(), id)
		if err == nil {
			acquired <- r
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lease granted while the first is held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release() // idempotent

	select {
	case r := <-acquired:
		r()
	case <-time.After(time.Second):
		t.Fatal("waiter never got the lease")
	}
	assert.False(t, locks.Held(id))
}

func TestAgentLocksAcquireCancelled(t *testing.T) {
	locks := NewAgentLocks()
	id := uuid.New()

	release, ok := locks.TryAcquire(id)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := locks.Acquire(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)

	release()
	assert.False(t, locks.Held(id))

	release, ok = locks.TryAcquire(id)
	require.True(t, ok)
	release()
}
