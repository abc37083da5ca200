package pricing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospbill/billing/internal/platform/lock"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) ApplyDue(_ context.Context, _ time.Time) (SweepResult, error) {
	s.calls.Add(1)
	return SweepResult{Applied: []uuid.UUID{uuid.New()}}, s.err
}

func TestApplier_RunOnce(t *testing.T) {
	sw := &countingSweeper{}
	a := NewApplier(sw, lock.NewLocalLocker(), time.Hour, zerolog.Nop())

	res, ran, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Len(t, res.Applied, 1)

	// the lock is released afterwards
	_, ran, err = a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(2), sw.calls.Load())
}

func TestApplier_SkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	release, ok, err := locker.TryLock(context.Background(), applierLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release(context.Background())

	sw := &countingSweeper{}
	_, ran, err := NewApplier(sw, locker, time.Hour, zerolog.Nop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, sw.calls.Load())
}

func TestApplier_PropagatesSweepError(t *testing.T) {
	sw := &countingSweeper{err: errors.New("db down")}
	_, ran, err := NewApplier(sw, lock.NewLocalLocker(), time.Hour, zerolog.Nop()).RunOnce(context.Background())
	assert.True(t, ran)
	assert.EqualError(t, err, "db down")
}

func TestApplier_RunSweepsAtStartAndStops(t *testing.T) {
	sw := &countingSweeper{}
	a := NewApplier(sw, lock.NewLocalLocker(), 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
