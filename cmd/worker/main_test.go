package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) Cleanup(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, c.err
}

func TestRunIdempotencyCleanup_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaner := &countingCleaner{}

	done := make(chan error, 1)
	go func() {
		done <- runIdempotencyCleanup(ctx, zerolog.Nop(), cleaner, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestRunIdempotencyCleanup_KeepsGoingAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleaner := &countingCleaner{err: errors.New("connection reset")}

	go runIdempotencyCleanup(ctx, zerolog.Nop(), cleaner, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
