package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunOnce(t *testing.T) {
	s := NewScheduler()
	var ok, failed int32
	s.AddJob("ok", time.Hour, func(context.Context) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})
	s.AddJob("failing", time.Hour, func(context.Context) error {
		atomic.AddInt32(&failed, 1)
		return errors.New("boom")
	})

	s.RunOnce(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failed), "a failing job must not stop the others")
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler()
	var runs int32
	s.AddJob("tick", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs), "no runs after Stop")
}

func TestRegisterLockSweep(t *testing.T) {
	locker := lock.NewMemoryLocker()
	ctx := context.Background()

	_, err := locker.TryLock(ctx, lock.Key("attendance", "emp-1", "2025-03-10", "clock-in"), time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	s := NewScheduler()
	RegisterLockSweep(s, locker, time.Minute)
	RegisterStreamReport(s, sse.NewHub(), time.Minute)
	s.RunOnce(ctx)

	removed, err := locker.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "expired lock already swept")
}
